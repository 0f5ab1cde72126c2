package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/invoicepli/invoice-pli-service/api"
	"github.com/invoicepli/invoice-pli-service/internal/auth"
	"github.com/invoicepli/invoice-pli-service/internal/compliance"
	"github.com/invoicepli/invoice-pli-service/internal/db"
	"github.com/invoicepli/invoice-pli-service/internal/models"
	"github.com/invoicepli/invoice-pli-service/internal/refdata"
	"github.com/invoicepli/invoice-pli-service/internal/storage"
	"github.com/invoicepli/invoice-pli-service/internal/suggest"
)

func main() {
	// Load .env if present (local development)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	// Initialize JWT
	if err := auth.Init(); err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}
	log.Println("JWT authentication initialized")

	// Initialize database connection pool
	if err := db.Init(); err != nil {
		log.Printf("Warning: Database not available: %v", err)
		log.Println("Running without persistence")
	} else {
		defer db.Close()
		log.Println("Database connection pool initialized")
	}

	// Initialize MinIO storage
	if err := storage.Init(); err != nil {
		log.Printf("Warning: MinIO storage not available: %v", err)
		log.Println("Documents and export artifacts will not be stored")
	} else {
		log.Println("MinIO storage initialized")
	}

	// Load configuration
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// NCM reference data: cache in Postgres when available, in memory otherwise
	var ncmStore refdata.Store
	if db.Pool != nil {
		ncmStore = db.NewNCMStore()
	} else {
		ncmStore = refdata.NewMemoryStore()
	}
	ncm := refdata.NewNCMService(config.Refdata, ncmStore)
	go func() {
		if err := ncm.Init(context.Background()); err != nil {
			log.Printf("Warning: NCM index load failed: %v", err)
		} else {
			status := ncm.Status()
			log.Printf("NCM index ready: %d records (state=%s)", status.RecordCount, status.State)
		}
	}()

	checklist := compliance.NewEngine(ncm)
	suggestions := suggest.NewMemory(128)

	// Create API handler
	handler := api.NewHandler(config, ncm, checklist, suggestions)
	router := handler.SetupRoutes()

	// Wrap router with JWT middleware (skips /health and /api/login)
	protectedRouter := auth.JWTMiddleware(router)

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Printf("Starting Invoice PLI Service v%s on %s", api.Version, addr)
	log.Printf("Default AI Provider: %s", config.AI.DefaultProvider)
	log.Printf("Database: %v", db.Pool != nil)
	log.Printf("Storage: %v", storage.Client != nil)
	log.Printf("Endpoints:")
	log.Printf("  POST http://%s/api/login                    - Authenticate", addr)
	log.Printf("  POST http://%s/api/extract                  - Extract invoice data (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/invoices                 - List invoices (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/invoice/{id}             - Get single invoice (requires JWT)", addr)
	log.Printf("  POST http://%s/api/invoice/{id}/field       - Apply field edit (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/invoice/{id}/compliance  - Compliance checklist (requires JWT)", addr)
	log.Printf("  POST http://%s/api/invoice/{id}/export      - Export XLSX + PLI (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/ncm/search               - Search tariff codes (requires JWT)", addr)
	log.Printf("  GET  http://%s/health                       - Health check", addr)

	if err := http.ListenAndServe(addr, protectedRouter); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadConfig(path string) (*models.Config, error) {
	// Read config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var config models.Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables if present
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Port)
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.AI.OpenAI.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.AI.Gemini.APIKey = apiKey
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		config.AI.DefaultProvider = provider
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.AI.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.AI.OpenAI.Model = model
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.AI.Gemini.Model = model
	}
	if url := os.Getenv("NCM_PRIMARY_URL"); url != "" {
		config.Refdata.PrimaryURL = url
	}

	return &config, nil
}
