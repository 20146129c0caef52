// internal/detection/parser.go
package detection

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"meal-footprint/internal/models"
)

// ErrMalformedResponse is returned when a payload has no recognizable
// top-level structure.
var ErrMalformedResponse = errors.New("malformed recognition response")

var (
	ErrMarkerNotFound    = errors.New("marker not found")
	ErrUnterminatedValue = errors.New("unterminated value")
	ErrInvalidNumber     = errors.New("invalid number")
	ErrNegativeWeight    = errors.New("negative weight")
)

// FieldError reports which field of the payload could not be extracted.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }
func (e *FieldError) Unwrap() error { return e.Err }

// The recognizer is asked for JSON, but its output is not trusted to be
// well formed, so only these keys are located textually.
var (
	mealNameMarker      = regexp.MustCompile(`"mealName"\s*:\s*"`)
	detectedItemsMarker = regexp.MustCompile(`"detectedItems"\s*:\s*\[`)
	originalLabelMarker = regexp.MustCompile(`"originalLabel"\s*:\s*"`)
	canonicalNameMarker = regexp.MustCompile(`"canonicalName"\s*:\s*"`)
	portionKgMarker     = regexp.MustCompile(`"portionKg"\s*:\s*`)
	confidenceMarker    = regexp.MustCompile(`"confidence"\s*:\s*`)
)

// Detection is one food item reported by the recognizer.
type Detection struct {
	OriginalLabel string   `json:"originalLabel"`
	CanonicalName string   `json:"canonicalName"`
	PortionKg     float64  `json:"portionKg"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

// Response is the structured content of a recognition payload.
type Response struct {
	MealName   string
	Detections []Detection
	Warnings   []models.Warning
}

// Parse extracts the meal name and detected items from a recognition payload.
// Items that cannot be read are dropped and reported in Response.Warnings.
func Parse(payload string) (*Response, error) {
	body, ok := stripWrapper(payload)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}
	if mealNameMarker.FindStringIndex(body) == nil && strings.Contains(body, `\"`) {
		// Payload arrived as an escaped JSON string.
		body = unescape(body)
	}

	mealName, err := stringField(body, mealNameMarker, "mealName")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	section, err := itemsSection(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	resp := &Response{MealName: mealName, Detections: []Detection{}}
	for i, fragment := range splitObjects(section) {
		fragment, absorbed := splitAbsorbed(fragment)
		for _, label := range absorbed {
			resp.Warnings = append(resp.Warnings, models.Warning{
				Kind:    models.WarnMalformedItem,
				Subject: label,
				Message: fmt.Sprintf("item dropped: merged into item %d, which is missing its closing brace", i+1),
			})
		}

		d, err := parseItem(fragment)
		if err != nil {
			resp.Warnings = append(resp.Warnings, models.Warning{
				Kind:    models.WarnMalformedItem,
				Subject: d.OriginalLabel,
				Message: fmt.Sprintf("item %d dropped: %v", i+1, err),
			})
			continue
		}
		resp.Detections = append(resp.Detections, d)
	}
	return resp, nil
}

// stripWrapper removes code fences and surrounding prose, returning the text
// from the first '{' to the last '}'.
func stripWrapper(payload string) (string, bool) {
	s := strings.TrimSpace(payload)
	if start := strings.Index(s, "```"); start != -1 {
		rest := s[start+3:]
		if end := strings.Index(rest, "```"); end != -1 {
			s = rest[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func unescape(s string) string {
	return strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\\`, `\`).Replace(s)
}

func parseItem(fragment string) (Detection, error) {
	var d Detection
	var err error

	if d.OriginalLabel, err = stringField(fragment, originalLabelMarker, "originalLabel"); err != nil {
		return d, err
	}
	if d.CanonicalName, err = stringField(fragment, canonicalNameMarker, "canonicalName"); err != nil {
		return d, err
	}
	if d.PortionKg, err = numberField(fragment, portionKgMarker, "portionKg"); err != nil {
		return d, err
	}
	if d.PortionKg < 0 {
		return d, &FieldError{Field: "portionKg", Err: ErrNegativeWeight}
	}
	if c, err := numberField(fragment, confidenceMarker, "confidence"); err == nil {
		d.Confidence = &c
	}
	return d, nil
}

// splitAbsorbed cuts a fragment that holds more than one item at the second
// originalLabel marker. It returns the first item's text and the labels of
// the items that were absorbed into it.
func splitAbsorbed(fragment string) (string, []string) {
	locs := originalLabelMarker.FindAllStringIndex(fragment, -1)
	if len(locs) < 2 {
		return fragment, nil
	}

	labels := make([]string, 0, len(locs)-1)
	for _, loc := range locs[1:] {
		label, _ := stringField(fragment[loc[0]:], originalLabelMarker, "originalLabel")
		labels = append(labels, label)
	}
	return fragment[:locs[1][0]], labels
}

// stringField returns the text between marker and the next unescaped quote.
func stringField(s string, marker *regexp.Regexp, field string) (string, error) {
	loc := marker.FindStringIndex(s)
	if loc == nil {
		return "", &FieldError{Field: field, Err: ErrMarkerNotFound}
	}
	rest := s[loc[1]:]

	escaped := false
	for i := 0; i < len(rest); i++ {
		switch {
		case escaped:
			escaped = false
		case rest[i] == '\\':
			escaped = true
		case rest[i] == '"':
			raw := rest[:i]
			if v, err := strconv.Unquote(`"` + raw + `"`); err == nil {
				return v, nil
			}
			return raw, nil
		}
	}
	return "", &FieldError{Field: field, Err: ErrUnterminatedValue}
}

// numberField parses the text after marker up to the next comma or the end
// of the enclosing object.
func numberField(s string, marker *regexp.Regexp, field string) (float64, error) {
	loc := marker.FindStringIndex(s)
	if loc == nil {
		return 0, &FieldError{Field: field, Err: ErrMarkerNotFound}
	}
	rest := s[loc[1]:]
	if end := strings.IndexAny(rest, ",}"); end != -1 {
		rest = rest[:end]
	}

	text := strings.Trim(strings.TrimSpace(rest), `"`)
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &FieldError{Field: field, Err: fmt.Errorf("%w %q", ErrInvalidNumber, text)}
	}
	return v, nil
}

// itemsSection returns the text inside the detectedItems array. A closer
// pops back to its nearest matching opener and unmatched closers are
// ignored, so an item missing its '}' does not swallow the array.
func itemsSection(s string) (string, error) {
	loc := detectedItemsMarker.FindStringIndex(s)
	if loc == nil {
		return "", &FieldError{Field: "detectedItems", Err: ErrMarkerNotFound}
	}
	open := loc[1] - 1

	var sc scanner
	var stack []byte
	for i := open; i < len(s); i++ {
		if !sc.step(s[i]) {
			continue
		}
		switch c := s[i]; c {
		case '[', '{':
			stack = append(stack, c)
		case ']', '}':
			opener := byte('[')
			if c == '}' {
				opener = '{'
			}
			for j := len(stack) - 1; j >= 0; j-- {
				if stack[j] == opener {
					stack = stack[:j]
					break
				}
			}
			if len(stack) == 0 {
				return s[open+1 : i], nil
			}
		}
	}
	return "", &FieldError{Field: "detectedItems", Err: ErrUnterminatedValue}
}

// splitObjects returns each top-level {...} object in section. An object
// left open at the end of the section is returned as is.
func splitObjects(section string) []string {
	var out []string
	var sc scanner
	start := -1

	for i := 0; i < len(section); i++ {
		if !sc.step(section[i]) {
			continue
		}
		switch section[i] {
		case '{', '[':
			if sc.depth == 0 && section[i] == '{' {
				start = i
			}
			sc.depth++
		case '}', ']':
			if sc.depth > 0 {
				sc.depth--
			}
			if sc.depth == 0 && section[i] == '}' && start != -1 {
				out = append(out, section[start:i+1])
				start = -1
			}
		}
	}
	if start != -1 {
		out = append(out, section[start:])
	}
	return out
}

// scanner tracks string state while walking JSON-like text byte by byte.
type scanner struct {
	depth    int
	inString bool
	escaped  bool
}

// step consumes c and reports whether it is structural (outside a string).
func (sc *scanner) step(c byte) bool {
	if sc.inString {
		switch {
		case sc.escaped:
			sc.escaped = false
		case c == '\\':
			sc.escaped = true
		case c == '"':
			sc.inString = false
		}
		return false
	}
	if c == '"' {
		sc.inString = true
		return false
	}
	return true
}
