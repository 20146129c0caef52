// internal/footprint/analyzer.go
package footprint

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"

	"meal-footprint/internal/detection"
	"meal-footprint/internal/metrics"
	"meal-footprint/internal/models"
	"meal-footprint/internal/recognition"
)

var ErrNoRecognizer = errors.New("no recognizer configured")

// Result is the outcome of one analysis: the best meal that could be built
// plus everything that was dropped on the way.
type Result struct {
	Meal     *models.Meal
	Warnings []models.Warning
}

func (r *Result) Summary() models.Summary {
	s := r.Meal.Summary()
	s.Warnings = r.Warnings
	return s
}

// Analyzer turns meal images or recognition payloads into meals.
type Analyzer struct {
	dataset    Lookup
	recognizer recognition.Recognizer
}

func NewAnalyzer(ds Lookup, rec recognition.Recognizer) *Analyzer {
	return &Analyzer{dataset: ds, recognizer: rec}
}

// Analyze sends the image to the recognizer and builds a meal from its answer.
func (a *Analyzer) Analyze(ctx context.Context, image []byte, mimeType string) (*Result, error) {
	if a.recognizer == nil {
		return nil, ErrNoRecognizer
	}

	payload, err := a.recognizer.Recognize(ctx, image, mimeType)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("recognition_error").Inc()
		return nil, fmt.Errorf("failed to recognize image: %w", err)
	}
	return a.AnalyzePayload(payload)
}

// AnalyzePayload builds a meal from an already obtained recognition payload.
func (a *Analyzer) AnalyzePayload(payload string) (*Result, error) {
	resp, err := detection.Parse(payload)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("malformed").Inc()
		return nil, err
	}

	meal, unresolved := BuildMeal(a.dataset, resp)
	warnings := append(append([]models.Warning{}, resp.Warnings...), unresolved...)

	for _, w := range warnings {
		metrics.WarningsTotal.WithLabelValues(string(w.Kind)).Inc()
		log.WithFields(log.Fields{
			"kind":  w.Kind,
			"label": w.Subject,
			"meal":  meal.Name,
		}).Warn(w.Message)
	}
	metrics.AnalysesTotal.WithLabelValues("ok").Inc()

	log.WithFields(log.Fields{
		"meal":       meal.Name,
		"detections": len(resp.Detections),
		"portions":   len(meal.Portions),
	}).Info("Analyzed meal")

	return &Result{Meal: meal, Warnings: warnings}, nil
}
