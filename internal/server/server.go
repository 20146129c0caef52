// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meal-footprint/internal/detection"
	"meal-footprint/internal/footprint"
	"meal-footprint/internal/models"
	"meal-footprint/internal/recognition"
	"meal-footprint/internal/report"
)

const maxImageBytes = 20 << 20

var (
	errInvalidParams = errors.New("invalid parameters")
	errNotFound      = errors.New("not found")
	errNoStorage     = errors.New("meal storage not configured")
)

type Config struct {
	Host string
	Port int
}

// MealStore persists analyzed meals.
type MealStore interface {
	SaveMeal(meal *models.MealRecord) error
	GetMeals(startDate, endDate string, limit int) ([]*models.MealRecord, error)
}

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

type FootprintServer struct {
	httpServer *http.Server
	analyzer   *footprint.Analyzer
	foods      footprint.Lookup
	storage    MealStore
	tools      map[string]toolHandler
	config     *Config
}

func NewFootprintServer(cfg *Config, analyzer *footprint.Analyzer, foods footprint.Lookup, store MealStore) (*FootprintServer, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}

	s := &FootprintServer{
		analyzer: analyzer,
		foods:    foods,
		storage:  store,
		config:   cfg,
	}
	s.registerTools()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)
	mux.HandleFunc("/analyze-image", s.handleAnalyzeImage)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

func (s *FootprintServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleHTTP serves MCP tool calls posted as JSON.
func (s *FootprintServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request protocol.CallToolRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 2*maxImageBytes)).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	handler, ok := s.tools[request.Name]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	result, err := handler(r.Context(), &request)
	if err != nil {
		log.WithError(err).WithField("tool", request.Name).Warn("Tool call failed")
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// handleAnalyzeImage accepts a raw image body and answers with the meal
// report document.
func (s *FootprintServer) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = recognition.DefaultMIMEType
	}

	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read image: %v", err), http.StatusRequestEntityTooLarge)
		return
	}

	rec, err := s.analyzeImage(r.Context(), image, mimeType)
	if err != nil {
		writeJSONError(w, err)
		return
	}

	body, err := report.JSON(rec.Summary)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *FootprintServer) analyzeImage(ctx context.Context, image []byte, mimeType string) (*models.MealRecord, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: %w", errInvalidParams, recognition.ErrEmptyImage)
	}
	res, err := s.analyzer.Analyze(ctx, image, mimeType)
	if err != nil {
		return nil, err
	}
	return s.record(res, "image"), nil
}

// record stores an analysis. Storage failures are logged and do not fail
// the request.
func (s *FootprintServer) record(res *footprint.Result, source string) *models.MealRecord {
	rec := &models.MealRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		Summary:   res.Summary(),
	}
	if s.storage == nil {
		return rec
	}
	if err := s.storage.SaveMeal(rec); err != nil {
		log.WithError(err).WithField("meal_id", rec.ID).Warn("Failed to save meal")
	}
	return rec
}

func (s *FootprintServer) Start(ctx context.Context) error {
	log.Infof("Starting meal footprint server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *FootprintServer) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *FootprintServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, detection.ErrMalformedResponse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errNoStorage), errors.Is(err, footprint.ErrNoRecognizer):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSONError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
