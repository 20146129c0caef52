// internal/server/tools.go
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"meal-footprint/internal/recognition"
)

const defaultMealLimit = 20

type AnalyzeImageParams struct {
	Image    string `json:"image" description:"Base64 encoded meal photo, optionally as a data URI"`
	MIMEType string `json:"mime_type,omitempty" description:"Image MIME type (defaults to image/jpeg)"`
}

type EstimateFootprintParams struct {
	Payload string `json:"payload" description:"Recognition response text with mealName and detectedItems"`
}

type LookupFoodParams struct {
	Name string `json:"name" description:"Canonical food name as listed in the reference dataset"`
}

type GetMealsParams struct {
	StartDate string `json:"start_date,omitempty" description:"Start date for meal query (YYYY-MM-DD)"`
	EndDate   string `json:"end_date,omitempty" description:"End date for meal query (YYYY-MM-DD)"`
	Limit     int    `json:"limit,omitempty" description:"Maximum number of meals to return"`
}

func (s *FootprintServer) registerTools() {
	s.tools = map[string]toolHandler{
		"analyze_image":      s.handleAnalyzeImageTool,
		"estimate_footprint": s.handleEstimateFootprint,
		"lookup_food":        s.handleLookupFood,
		"get_meals":          s.handleGetMeals,
	}
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal arguments: %v", errInvalidParams, err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: failed to unmarshal parameters: %v", errInvalidParams, err)
	}

	return nil
}

func (s *FootprintServer) handleAnalyzeImageTool(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params AnalyzeImageParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	image, mimeType, err := decodeImage(params.Image, params.MIMEType)
	if err != nil {
		return nil, err
	}

	rec, err := s.analyzeImage(ctx, image, mimeType)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(rec)
}

// handleEstimateFootprint builds a meal from a recognition payload the
// caller already has, without contacting the recognition service.
func (s *FootprintServer) handleEstimateFootprint(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params EstimateFootprintParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Payload) == "" {
		return nil, fmt.Errorf("%w: payload is required", errInvalidParams)
	}

	res, err := s.analyzer.AnalyzePayload(params.Payload)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(s.record(res, "payload"))
}

func (s *FootprintServer) handleLookupFood(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params LookupFoodParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, fmt.Errorf("%w: name is required", errInvalidParams)
	}
	if s.foods == nil {
		return nil, fmt.Errorf("%w: %q", errNotFound, params.Name)
	}

	entry, ok := s.foods.Lookup(params.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errNotFound, params.Name)
	}
	return s.createJSONResponse(entry)
}

func (s *FootprintServer) handleGetMeals(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetMealsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if s.storage == nil {
		return nil, errNoStorage
	}

	if params.Limit <= 0 {
		params.Limit = defaultMealLimit
	}

	meals, err := s.storage.GetMeals(params.StartDate, params.EndDate, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get meals: %w", err)
	}

	return s.createJSONResponse(map[string]interface{}{
		"meals": meals,
		"count": len(meals),
	})
}

// decodeImage accepts plain base64 or a data URI and returns the image bytes
// with the MIME type to send along.
func decodeImage(encoded, mimeType string) ([]byte, string, error) {
	if encoded == "" {
		return nil, "", fmt.Errorf("%w: image is required", errInvalidParams)
	}

	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("%w: unsupported data URI", errInvalidParams)
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		encoded = data
	}

	image, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, "", fmt.Errorf("%w: image is not valid base64: %v", errInvalidParams, err)
	}
	if mimeType == "" {
		mimeType = recognition.DefaultMIMEType
	}
	return image, mimeType, nil
}
