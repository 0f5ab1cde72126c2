package refdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/invoicepli/invoice-pli-service/internal/models"
)

// State of the NCM index loader.
type State string

const (
	StateCold     State = "cold"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateDegraded State = "degraded"
)

const (
	// BypassCode marks goods documented as exempt from NCM classification.
	BypassCode        = "99999999"
	BypassDescription = "SEM CLASSIFICACAO - NCM dispensado para esta mercadoria"

	maxAttempts     = 3
	backoffBase     = 500 * time.Millisecond
	backoffCap      = 5 * time.Second
	requestTimeout  = 30 * time.Second
	cooldownWindow  = 15 * time.Minute
	refreshInterval = 24 * time.Hour
)

// ErrNoCache is returned by a Store when no index payload has been saved yet.
var ErrNoCache = errors.New("refdata: no cached index")

// Store persists the downloaded index payload and the rate-limit cooldown
// expiry between runs.
type Store interface {
	LoadIndex(ctx context.Context) (payload []byte, fetchedAt time.Time, err error)
	SaveIndex(ctx context.Context, payload []byte) error
	CooldownUntil(ctx context.Context) (time.Time, error)
	SetCooldownUntil(ctx context.Context, until time.Time) error
}

// Doer abstracts the HTTP client so the loader is testable without a network.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Status reports loader readiness.
type Status struct {
	State       State `json:"state"`
	IsReady     bool  `json:"isReady"`
	RecordCount int   `json:"recordCount"`
}

// NCMService loads and serves the 8-digit tariff code index. The index is
// read-mostly with a single writer (the loader); lookups take a read lock.
type NCMService struct {
	store      Store
	primaryURL string
	mirrorURLs []string

	client Doer
	now    func() time.Time
	sleep  func(time.Duration)

	group singleflight.Group

	mu    sync.RWMutex
	state State
	index map[string]string
}

// NewNCMService creates a loader for the given sources. store may be nil, in
// which case caching and the rate-limit cooldown are kept in memory only.
func NewNCMService(cfg models.RefdataConfig, store Store) *NCMService {
	if store == nil {
		store = NewMemoryStore()
	}
	return &NCMService{
		store:      store,
		primaryURL: cfg.PrimaryURL,
		mirrorURLs: cfg.MirrorURLs,
		client:     &http.Client{Timeout: requestTimeout},
		now:        time.Now,
		sleep:      time.Sleep,
		state:      StateCold,
		index:      map[string]string{},
	}
}

// Init loads the index. It is idempotent and collapses concurrent callers onto
// a single in-flight load. It never fails hard: if every source is unreachable
// the static fallback table is installed and the loader reports degraded.
func (s *NCMService) Init(ctx context.Context) error {
	if s.Status().IsReady {
		return nil
	}

	_, err, _ := s.group.Do("init", func() (interface{}, error) {
		if s.Status().IsReady {
			return nil, nil
		}
		s.setState(StateLoading)

		// Tier 1: local cache. A hit makes us ready immediately; a
		// background refresh keeps the data current without blocking.
		if payload, fetchedAt, err := s.store.LoadIndex(ctx); err == nil {
			if index, perr := ParseIndex(payload); perr == nil && len(index) > 0 {
				s.install(index, StateReady)
				log.Printf("NCM index loaded from cache: %d records", len(index))
				if s.now().Sub(fetchedAt) > refreshInterval {
					go s.backgroundRefresh()
				}
				return nil, nil
			}
		} else if !errors.Is(err, ErrNoCache) {
			log.Printf("NCM cache read failed: %v", err)
		}

		// Tier 2/3: network primary, then mirrors.
		if payload, err := s.fetchRemote(ctx); err == nil {
			index, perr := ParseIndex(payload)
			if perr == nil && len(index) > 0 {
				s.install(index, StateReady)
				if serr := s.store.SaveIndex(ctx, payload); serr != nil {
					log.Printf("NCM cache write failed: %v", serr)
				}
				log.Printf("NCM index downloaded: %d records", len(index))
				return nil, nil
			}
			log.Printf("NCM payload unusable: %v", perr)
		} else {
			log.Printf("NCM download failed on all sources: %v", err)
		}

		// Tier 4: fixed fallback so lookups are never left empty.
		s.install(fallbackIndex(), StateDegraded)
		log.Printf("NCM index degraded to fallback table (%d records)", len(fallbackIndex()))
		return nil, nil
	})
	return err
}

// fetchRemote tries the primary source and then each mirror, with capped
// exponential backoff per source. A 429 opens the cooldown window so the
// primary is skipped entirely until it expires.
func (s *NCMService) fetchRemote(ctx context.Context) ([]byte, error) {
	sources := make([]string, 0, 1+len(s.mirrorURLs))
	if s.primaryURL != "" && !s.coolingDown(ctx) {
		sources = append(sources, s.primaryURL)
	}
	sources = append(sources, s.mirrorURLs...)
	if len(sources) == 0 {
		return nil, errors.New("no sources configured")
	}

	var lastErr error
	for _, url := range sources {
		payload, err := s.fetchWithRetry(ctx, url)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		log.Printf("NCM source %s failed: %v", url, err)
	}
	return nil, lastErr
}

func (s *NCMService) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffBase << (attempt - 1)
			if delay > backoffCap {
				delay = backoffCap
			}
			s.sleep(delay)
		}

		payload, retryable, err := s.fetchOnce(ctx, url)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *NCMService) fetchOnce(ctx context.Context, url string) (payload []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		until := s.now().Add(cooldownWindow)
		if serr := s.store.SetCooldownUntil(ctx, until); serr != nil {
			log.Printf("failed to persist cooldown: %v", serr)
		}
		return nil, false, fmt.Errorf("rate limited (429), cooling down until %s", until.Format(time.RFC3339))
	case resp.StatusCode != http.StatusOK:
		return nil, resp.StatusCode >= 500, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	payload, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return payload, false, nil
}

func (s *NCMService) coolingDown(ctx context.Context) bool {
	until, err := s.store.CooldownUntil(ctx)
	if err != nil {
		return false
	}
	return s.now().Before(until)
}

// backgroundRefresh re-downloads the index after a cache hit. Fire and forget:
// callers are already ready and must not wait on it.
func (s *NCMService) backgroundRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	payload, err := s.fetchRemote(ctx)
	if err != nil {
		log.Printf("NCM background refresh failed: %v", err)
		return
	}
	index, err := ParseIndex(payload)
	if err != nil || len(index) == 0 {
		log.Printf("NCM background refresh produced unusable payload: %v", err)
		return
	}
	s.install(index, StateReady)
	if err := s.store.SaveIndex(ctx, payload); err != nil {
		log.Printf("NCM cache write failed: %v", err)
	}
	log.Printf("NCM index refreshed: %d records", len(index))
}

func (s *NCMService) install(index map[string]string, state State) {
	s.mu.Lock()
	s.index = index
	s.state = state
	s.mu.Unlock()
}

func (s *NCMService) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Status returns the loader state and record count.
func (s *NCMService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ready := s.state == StateReady || s.state == StateDegraded
	return Status{State: s.state, IsReady: ready, RecordCount: len(s.index)}
}

// Description resolves an 8-digit code to its description. Input is normalized
// by stripping everything that is not a digit. The bypass code resolves to its
// fixed description regardless of the index contents.
func (s *NCMService) Description(code string) (string, bool) {
	clean := digitsOnly(code)
	if clean == BypassCode {
		return BypassDescription, true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	desc, ok := s.index[clean]
	return desc, ok
}

// SearchResult is one hit of a free-text or code search.
type SearchResult struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Search matches term against codes (formatting stripped) and descriptions
// (case-insensitive). Results are sorted by code and capped at limit.
func (s *NCMService) Search(term string, limit int) []SearchResult {
	if limit <= 0 {
		limit = 20
	}
	termClean := digitsOnly(term)
	termLower := strings.ToLower(strings.TrimSpace(term))

	s.mu.RLock()
	var results []SearchResult
	for code, desc := range s.index {
		if (termClean != "" && strings.Contains(code, termClean)) ||
			(termLower != "" && strings.Contains(strings.ToLower(desc), termLower)) {
			results = append(results, SearchResult{Code: code, Description: desc})
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Code < results[j].Code })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// HierarchyLevel is one ancestor of a full 8-digit code.
type HierarchyLevel struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Level       string `json:"level"`
}

// Hierarchy returns the chapter/position/subposition/item chain for a code,
// skipping prefixes absent from the index.
func (s *NCMService) Hierarchy(code string) []HierarchyLevel {
	clean := digitsOnly(code)
	levels := map[int]string{2: "Capitulo", 4: "Posicao", 6: "Subposicao", 8: "Item"}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []HierarchyLevel
	for _, n := range []int{2, 4, 6, 8} {
		if len(clean) < n {
			break
		}
		prefix := clean[:n]
		if desc, ok := s.index[prefix]; ok {
			chain = append(chain, HierarchyLevel{Code: prefix, Description: desc, Level: levels[n]})
		}
	}
	return chain
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// fallbackIndex is the minimal fixed table installed when every source fails.
func fallbackIndex() map[string]string {
	return map[string]string{
		"39269090": "Outras obras de plasticos",
		"73181500": "Outros parafusos e pinos, mesmo com as porcas e arruelas",
		"84099190": "Outras partes para motores de ignicao por centelha",
		"84713012": "Maquinas automaticas para processamento de dados, portateis",
		"84733092": "Outras partes para maquinas da posicao 84.71",
		"85044010": "Carregadores de acumuladores",
		"85171231": "Telefones celulares",
		"85287200": "Outros aparelhos receptores de televisao, a cores",
		"85444200": "Outros condutores eletricos, munidos de pecas de conexao",
		"87083090": "Outros freios e suas partes",
		"90328911": "Reguladores eletronicos de voltagem",
	}
}
