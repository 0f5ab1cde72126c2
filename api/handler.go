package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/invoicepli/invoice-pli-service/internal/ai"
	"github.com/invoicepli/invoice-pli-service/internal/auth"
	"github.com/invoicepli/invoice-pli-service/internal/calc"
	"github.com/invoicepli/invoice-pli-service/internal/compliance"
	"github.com/invoicepli/invoice-pli-service/internal/db"
	"github.com/invoicepli/invoice-pli-service/internal/export"
	"github.com/invoicepli/invoice-pli-service/internal/models"
	"github.com/invoicepli/invoice-pli-service/internal/refdata"
	"github.com/invoicepli/invoice-pli-service/internal/storage"
	"github.com/invoicepli/invoice-pli-service/internal/suggest"
)

const (
	MaxUploadSize = 20 * 1024 * 1024 // 20MB, PDFs included
	Version       = "1.3.0"
)

// Handler handles HTTP requests for invoice processing
type Handler struct {
	config      *models.Config
	ncm         *refdata.NCMService
	checklist   *compliance.Engine
	suggestions *suggest.Memory
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, ncm *refdata.NCMService, checklist *compliance.Engine, suggestions *suggest.Memory) *Handler {
	return &Handler{
		config:      config,
		ncm:         ncm,
		checklist:   checklist,
		suggestions: suggestions,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Auth
	router.HandleFunc("/api/login", auth.LoginHandler).Methods("POST")

	// Extraction
	router.HandleFunc("/api/extract", h.ExtractInvoice).Methods("POST")

	// Invoice CRUD
	router.HandleFunc("/api/invoices", h.GetInvoices).Methods("GET")
	router.HandleFunc("/api/invoice/{id}", h.GetInvoice).Methods("GET")
	router.HandleFunc("/api/invoice/{id}", h.UpdateInvoice).Methods("PUT")
	router.HandleFunc("/api/invoice/{id}", h.DeleteInvoice).Methods("DELETE")

	// Editing
	router.HandleFunc("/api/invoice/{id}/field", h.ApplyFieldChange).Methods("POST")
	router.HandleFunc("/api/invoice/{id}/items", h.AddItem).Methods("POST")
	router.HandleFunc("/api/invoice/{id}/items/{idx}/duplicate", h.DuplicateItem).Methods("POST")
	router.HandleFunc("/api/invoice/{id}/items/{idx}", h.RemoveItem).Methods("DELETE")

	// Compliance and export
	router.HandleFunc("/api/invoice/{id}/compliance", h.GetCompliance).Methods("GET")
	router.HandleFunc("/api/invoice/{id}/export", h.ExportInvoice).Methods("POST")

	// NCM reference data
	router.HandleFunc("/api/ncm/status", h.GetNCMStatus).Methods("GET")
	router.HandleFunc("/api/ncm/search", h.SearchNCM).Methods("GET")
	router.HandleFunc("/api/ncm/{code}", h.GetNCM).Methods("GET")

	// Field suggestions
	router.HandleFunc("/api/suggest", h.GetSuggestions).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Memory    MemoryStats       `json:"memory"`
	Database  ServiceStatus     `json:"database"`
	Storage   ServiceStatus     `json:"storage"`
	NCM       refdata.Status    `json:"ncm"`
	AI        map[string]string `json:"ai"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	aiStatus := map[string]string{}
	if h.config.AI.OpenAI.APIKey != "" {
		aiStatus["openai"] = h.config.AI.OpenAI.Model
	}
	if h.config.AI.Gemini.APIKey != "" {
		aiStatus["gemini"] = h.config.AI.Gemini.Model
	}

	response := HealthResponse{
		Status:    "ok",
		Version:   Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%d MB", m.Alloc/1024/1024),
			Total:     fmt.Sprintf("%d MB", m.TotalAlloc/1024/1024),
			System:    fmt.Sprintf("%d MB", m.Sys/1024/1024),
		},
		Database: h.checkDatabase(r),
		Storage:  h.checkStorage(),
		NCM:      h.ncm.Status(),
		AI:       aiStatus,
	}

	json.NewEncoder(w).Encode(response)
}

func (h *Handler) checkDatabase(r *http.Request) ServiceStatus {
	if db.Pool == nil {
		return ServiceStatus{Available: false, Error: "not configured"}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := db.Pool.Ping(ctx); err != nil {
		return ServiceStatus{Available: false, Error: err.Error()}
	}
	return ServiceStatus{Available: true}
}

func (h *Handler) checkStorage() ServiceStatus {
	if storage.Client == nil {
		return ServiceStatus{Available: false, Error: "not configured"}
	}
	return ServiceStatus{Available: true}
}

// ExtractInvoice accepts an uploaded invoice document, runs AI extraction
// and persists the normalized result.
func (h *Handler) ExtractInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	requestStart := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.sendError(w, http.StatusBadRequest, "file too large or invalid form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "no file provided (use 'file' field)")
		return
	}
	defer file.Close()

	fileData, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	providerName := r.FormValue("aiProvider")
	if providerName == "" {
		providerName = h.config.AI.DefaultProvider
	}
	provider, err := h.createProvider(providerName, r.FormValue("model"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Store the original document first (best effort)
	var sourceURL string
	if storage.Client != nil {
		filename := fmt.Sprintf("%s_%s%s",
			time.Now().Format("20060102_150405"),
			uuid.New().String()[:8],
			storage.GetFileExtension(contentType),
		)
		reader := bytes.NewReader(fileData)
		if url, upErr := storage.UploadSourceDocument(ctx, filename, reader, int64(len(fileData)), contentType); upErr != nil {
			fmt.Printf("Warning: failed to upload document to MinIO: %v\n", upErr)
		} else {
			sourceURL = url
		}
	}

	extractor := ai.NewExtractor(provider)
	invoice, aiDuration, err := extractor.Extract(ctx, fileData, contentType, header.Filename)

	totalDuration := time.Since(requestStart).Seconds()

	if err != nil {
		json.NewEncoder(w).Encode(models.ExtractResponse{
			Success:       false,
			Error:         err.Error(),
			TotalDuration: totalDuration,
		})
		return
	}

	invoice.SourceFileURL = sourceURL
	invoice.ProcessedAt = time.Now().UTC()

	if db.Pool != nil {
		if err := db.SaveInvoice(ctx, invoice); err != nil {
			fmt.Printf("Warning: failed to save invoice to DB: %v\n", err)
		}
	}

	json.NewEncoder(w).Encode(models.ExtractResponse{
		Success:       true,
		Invoice:       invoice,
		AIDuration:    aiDuration,
		TotalDuration: totalDuration,
	})
}

// GetInvoices returns recent invoices
func (h *Handler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	limit := 100
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	invoices, err := db.GetInvoices(ctx, limit)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get invoices: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"invoices": invoices,
		"count":    len(invoices),
	})
}

// GetInvoice returns a single invoice
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	invoice, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}

	// Presigned URL for the source document
	if invoice.SourceFileURL != "" && storage.Client != nil {
		if presignedURL, err := storage.GetPresignedURL(ctx, invoice.SourceFileURL); err == nil {
			invoice.SourceFileURL = presignedURL
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"invoice": invoice,
	})
}

// UpdateInvoice replaces invoice data wholesale
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	vars := mux.Vars(r)
	invoiceID := vars["id"]

	var incoming models.Invoice
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := uuid.Parse(invoiceID)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}
	incoming.ID = id

	normalized := calc.Normalize(incoming)
	if err := db.UpdateInvoice(ctx, &normalized); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to update invoice")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"invoice": normalized,
	})
}

// DeleteInvoice removes an invoice
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	vars := mux.Vars(r)
	invoiceID := vars["id"]

	// Remove the stored source document too (ignore errors)
	if storage.Client != nil {
		if invoice, err := db.GetInvoiceByID(ctx, invoiceID); err == nil && invoice.SourceFileURL != "" {
			_ = storage.DeleteObject(ctx, invoice.SourceFileURL)
		}
	}

	if err := db.DeleteInvoice(ctx, invoiceID); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to delete invoice")
		return
	}

	log.Printf("Invoice %s deleted by %s", invoiceID, requestUser(ctx))

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "invoice deleted",
	})
}

// requestUser labels mutating actions in the log with the authenticated user.
func requestUser(ctx context.Context) string {
	if claims, ok := auth.GetClaimsFromContext(ctx); ok {
		return claims.Email
	}
	return "anonymous"
}

// fieldChangeRequest is the body of a single cell edit
type fieldChangeRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// suggestableFields are recorded for autocomplete after each successful edit
var suggestableFields = map[string]bool{
	"exporterName":    true,
	"exporterAddress": true,
	"importerName":    true,
	"importerAddress": true,
	"portOfLoading":   true,
	"portOfDischarge": true,
	"paymentTerms":    true,
	"volumeType":      true,
}

// ApplyFieldChange applies one field edit and recomputes dependent values
func (h *Handler) ApplyFieldChange(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	invoice, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}

	var req fieldChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Field == "" {
		h.sendError(w, http.StatusBadRequest, "field is required")
		return
	}

	updated := calc.ApplyFieldChange(*invoice, req.Field, req.Value)

	if err := db.UpdateInvoice(ctx, &updated); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to save invoice")
		return
	}

	if suggestableFields[req.Field] && req.Value != "" {
		h.suggestions.Record(req.Field, req.Value)
	}

	log.Printf("Invoice %s: field %s updated by %s", updated.ID, req.Field, requestUser(ctx))

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"invoice": updated,
	})
}

// AddItem appends an empty line item
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItems(w, r, func(inv models.Invoice, _ int) models.Invoice {
		return calc.AddItem(inv)
	}, false)
}

// DuplicateItem copies a line item after its source row
func (h *Handler) DuplicateItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItems(w, r, calc.DuplicateItem, true)
}

// RemoveItem deletes a line item
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItems(w, r, calc.RemoveItem, true)
}

func (h *Handler) mutateItems(w http.ResponseWriter, r *http.Request, op func(models.Invoice, int) models.Invoice, needsIndex bool) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	invoice, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}

	idx := -1
	if needsIndex {
		var err error
		idx, err = strconv.Atoi(mux.Vars(r)["idx"])
		if err != nil || idx < 0 || idx >= len(invoice.LineItems) {
			h.sendError(w, http.StatusBadRequest, "invalid item index")
			return
		}
	}

	updated := op(*invoice, idx)

	if err := db.UpdateInvoice(ctx, &updated); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to save invoice")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"invoice": updated,
	})
}

// GetCompliance evaluates the compliance checklist for an invoice
func (h *Handler) GetCompliance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	invoice, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}

	report := h.checklist.Evaluate(invoice)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"report":  report,
	})
}

// ExportInvoice generates the XLSX and PLI artifacts. Validation issues are
// reported alongside the files but never block the export.
func (h *Handler) ExportInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	invoice, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}

	xlsxData, err := export.BuildXLSX(invoice)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build XLSX: %v", err))
		return
	}
	pliData := export.BuildPLI(invoice)

	report := export.ValidatePLI(invoice)

	baseName := invoice.InvoiceNumber
	if baseName == "" {
		baseName = invoice.ID.String()
	}

	type artifact struct {
		key, name, contentType string
		data                   []byte
	}

	files := map[string]string{}
	if storage.Client != nil {
		artifacts := []artifact{
			{"xlsx", baseName + ".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", xlsxData},
			{"pli", baseName + ".pli.csv", "text/csv; charset=utf-8", pliData},
		}
		if report != nil {
			artifacts = append(artifacts, artifact{"report", baseName + "_avisos.txt", "text/plain; charset=utf-8", report.Render()})
		}
		for _, a := range artifacts {
			path, upErr := storage.UploadExportArtifact(ctx, invoice.ID.String(), a.name, a.data, a.contentType)
			if upErr != nil {
				fmt.Printf("Warning: failed to upload %s artifact: %v\n", a.key, upErr)
				continue
			}
			if url, urlErr := storage.GetPresignedURL(ctx, path); urlErr == nil {
				files[a.key] = url
			}
		}
	} else {
		// No object storage: return the artifacts inline
		files["xlsx"] = base64.StdEncoding.EncodeToString(xlsxData)
		files["pli"] = base64.StdEncoding.EncodeToString(pliData)
		if report != nil {
			files["report"] = base64.StdEncoding.EncodeToString(report.Render())
		}
	}

	response := map[string]interface{}{
		"success": true,
		"files":   files,
		"inline":  storage.Client == nil,
	}
	if report != nil {
		response["violations"] = report.Violations
		response["reportText"] = string(report.Render())
	}

	json.NewEncoder(w).Encode(response)
}

// GetNCMStatus reports the loader state
func (h *Handler) GetNCMStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.ncm.Status())
}

// SearchNCM searches the tariff index by code or description
func (h *Handler) SearchNCM(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	term := r.URL.Query().Get("q")
	if term == "" {
		h.sendError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	results := h.ncm.Search(term, limit)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"results": results,
		"count":   len(results),
	})
}

// GetNCM resolves a single tariff code with its hierarchy
func (h *Handler) GetNCM(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	code := mux.Vars(r)["code"]
	description, found := h.ncm.Description(code)
	if !found {
		h.sendError(w, http.StatusNotFound, "NCM code not found")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"code":        code,
		"description": description,
		"hierarchy":   h.ncm.Hierarchy(code),
	})
}

// GetSuggestions returns autocomplete candidates for a field
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	field := r.URL.Query().Get("field")
	if field == "" {
		h.sendError(w, http.StatusBadRequest, "field parameter is required")
		return
	}
	prefix := r.URL.Query().Get("prefix")

	limit := 10
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 50 {
		limit = l
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"suggestions": h.suggestions.Suggest(field, prefix, limit),
	})
}

// loadInvoice fetches the invoice named in the route, writing the error
// response itself when it fails.
func (h *Handler) loadInvoice(w http.ResponseWriter, r *http.Request) (*models.Invoice, bool) {
	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return nil, false
	}

	invoiceID := mux.Vars(r)["id"]
	invoice, err := db.GetInvoiceByID(r.Context(), invoiceID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, fmt.Sprintf("invoice not found: %v", err))
		return nil, false
	}
	return invoice, true
}

// createProvider creates the appropriate AI provider
func (h *Handler) createProvider(providerName, modelName string) (ai.Provider, error) {
	switch providerName {
	case "openai":
		model := modelName
		if model == "" {
			model = h.config.AI.OpenAI.Model
		}
		return ai.NewOpenAIProvider(
			h.config.AI.OpenAI.APIKey,
			h.config.AI.OpenAI.BaseURL,
			model,
		), nil

	case "gemini":
		model := modelName
		if model == "" {
			model = h.config.AI.Gemini.Model
		}
		return ai.NewGeminiProvider(
			h.config.AI.Gemini.APIKey,
			model,
		), nil

	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", providerName)
	}
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
