// internal/recognition/gemini.go
package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	genai "google.golang.org/genai"

	"meal-footprint/internal/metrics"
)

const DefaultGeminiModel = "gemini-2.0-flash"

var ErrEmptyResponse = errors.New("empty response from recognition service")

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiRecognizer asks a Gemini vision model to list the foods on a plate,
// matched against the dataset's food names.
type GeminiRecognizer struct {
	models  generator
	model   string
	prompt  string
	timeout time.Duration
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// FoodNames are the canonical names the model must choose from.
	FoodNames []string
}

func NewGeminiRecognizer(ctx context.Context, cfg GeminiConfig) (*GeminiRecognizer, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newGeminiRecognizer(cli.Models, cfg), nil
}

func newGeminiRecognizer(models generator, cfg GeminiConfig) *GeminiRecognizer {
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiRecognizer{
		models:  models,
		model:   model,
		prompt:  BuildPrompt(cfg.FoodNames),
		timeout: cfg.Timeout,
	}
}

func (g *GeminiRecognizer) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: g.prompt},
			{InlineData: &genai.Blob{MIMEType: normalizeMIMEType(mimeType), Data: image}},
		},
	}}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, contents,
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	metrics.RecognitionDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", g.model, err)
	}

	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	log.WithFields(log.Fields{
		"model":    g.model,
		"bytes":    len(image),
		"duration": time.Since(start).String(),
	}).Debug("Recognition completed")
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// BuildPrompt renders the recognition instructions for the given food names.
func BuildPrompt(foodNames []string) string {
	names := "any common food name"
	if len(foodNames) > 0 {
		names = "[" + strings.Join(foodNames, ", ") + "]"
	}
	return fmt.Sprintf(promptTemplate, names)
}

const promptTemplate = `You are a food recognition system that analyzes meal photos for environmental impact calculation.

Identify every visible food item, match it to the closest canonical name from this list, and estimate its weight in kilograms:
%s

Rules:
- canonicalName MUST be copied exactly from the list. If nothing is close, use "other" and explain in visualNotes.
- Portion sizes: small 0.05-0.1 kg, medium 0.1-0.2 kg, large 0.2-0.4 kg. Use plate and cutlery for scale. For liquids, 1 L is about 1 kg.
- Break mixed dishes into their visible components. Only include garnishes and sauces with significant mass.
- confidence is 0.0 (guess) to 1.0 (certain).

Return ONLY this JSON object, without markdown or comments:
{
  "mealName": "short descriptive name of the meal",
  "detectedItems": [
    {
      "originalLabel": "what you see",
      "canonicalName": "exact name from the list",
      "portionKg": 0.15,
      "confidence": 0.9,
      "visualNotes": "what helped identification"
    }
  ],
  "overallConfidence": 0.0,
  "imageQuality": "excellent | good | fair | poor",
  "warnings": [],
  "unidentifiedItems": []
}

If there is no food in the image, return "mealName": "No meal detected" with an empty detectedItems array and the reason in warnings.`
