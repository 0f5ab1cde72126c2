package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/invoicepli/invoice-pli-service/internal/refdata"
)

// NCMStore persists the downloaded NCM index payload and the rate-limit
// cooldown expiry in a single-row table, so a restart does not re-hit the CDN
// and an open cooldown survives the process.
type NCMStore struct{}

// NewNCMStore creates a store backed by the shared pool.
func NewNCMStore() *NCMStore {
	return &NCMStore{}
}

var _ refdata.Store = (*NCMStore)(nil)

func (s *NCMStore) LoadIndex(ctx context.Context) ([]byte, time.Time, error) {
	var payload []byte
	var fetchedAt time.Time
	err := Pool.QueryRow(ctx,
		`SELECT payload, fetched_at FROM ncm_cache WHERE id = 1`,
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, refdata.ErrNoCache
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(payload) == 0 {
		return nil, time.Time{}, refdata.ErrNoCache
	}
	return payload, fetchedAt, nil
}

func (s *NCMStore) SaveIndex(ctx context.Context, payload []byte) error {
	_, err := Pool.Exec(ctx, `
		INSERT INTO ncm_cache (id, payload, fetched_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET payload = $1, fetched_at = NOW()
	`, payload)
	return err
}

func (s *NCMStore) CooldownUntil(ctx context.Context) (time.Time, error) {
	var until *time.Time
	err := Pool.QueryRow(ctx,
		`SELECT cooldown_until FROM ncm_cache WHERE id = 1`,
	).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if until == nil {
		return time.Time{}, nil
	}
	return *until, nil
}

func (s *NCMStore) SetCooldownUntil(ctx context.Context, until time.Time) error {
	_, err := Pool.Exec(ctx, `
		INSERT INTO ncm_cache (id, cooldown_until)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET cooldown_until = $1
	`, until)
	return err
}
