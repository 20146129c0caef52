package footprint

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meal-footprint/internal/dataset"
	"meal-footprint/internal/detection"
	"meal-footprint/internal/models"
	"meal-footprint/internal/recognition"
)

const tolerance = 1e-9

type mapLookup map[string]*models.ReferenceEntry

func (m mapLookup) Lookup(name string) (*models.ReferenceEntry, bool) {
	e, ok := m[name]
	return e, ok
}

func testDataset() mapLookup {
	return mapLookup{
		"Rice":           models.NewReferenceEntry("Rice", 2.5, 2248, 2.8, 9.5),
		"Chicken breast": models.NewReferenceEntry("Chicken breast", 9.87, 660, 12.2, 65.0),
	}
}

func TestBuildMealRice(t *testing.T) {
	resp := &detection.Response{
		MealName:   "Rice bowl",
		Detections: []detection.Detection{{OriginalLabel: "white rice", CanonicalName: "Rice", PortionKg: 0.2}},
	}

	meal, warnings := BuildMeal(testDataset(), resp)

	assert.Empty(t, warnings)
	assert.Equal(t, "Rice bowl", meal.Name)
	require.Len(t, meal.Portions, 1)
	assert.InDelta(t, 0.5, meal.TotalCarbon(), tolerance)
}

func TestBuildMealDropsUnresolved(t *testing.T) {
	ds := testDataset()
	resolved := []detection.Detection{
		{OriginalLabel: "white rice", CanonicalName: "Rice", PortionKg: 0.2},
		{OriginalLabel: "chicken", CanonicalName: "Chicken breast", PortionKg: 0.15},
	}
	withUnknown := append([]detection.Detection{
		{OriginalLabel: "mystery sauce", CanonicalName: "other", PortionKg: 0.05},
	}, resolved...)

	base, _ := BuildMeal(ds, &detection.Response{MealName: "plate", Detections: resolved})
	meal, warnings := BuildMeal(ds, &detection.Response{MealName: "plate", Detections: withUnknown})

	assert.Len(t, meal.Portions, len(withUnknown)-1)
	require.Len(t, warnings, 1)
	assert.Equal(t, models.WarnUnresolvedDetection, warnings[0].Kind)
	assert.Equal(t, "mystery sauce", warnings[0].Subject)
	assert.Contains(t, warnings[0].Message, `"other"`)

	assert.InDelta(t, base.TotalCarbon(), meal.TotalCarbon(), tolerance)
	assert.InDelta(t, base.TotalWater(), meal.TotalWater(), tolerance)
	assert.InDelta(t, base.TotalLand(), meal.TotalLand(), tolerance)
	assert.InDelta(t, base.TotalNitrogen(), meal.TotalNitrogen(), tolerance)
}

func TestBuildMealLookupIsCaseSensitive(t *testing.T) {
	meal, warnings := BuildMeal(testDataset(), &detection.Response{
		MealName:   "rice",
		Detections: []detection.Detection{{OriginalLabel: "rice", CanonicalName: "rice", PortionKg: 0.2}},
	})
	assert.Empty(t, meal.Portions)
	assert.Len(t, warnings, 1)
}

func TestBuildMealEmpty(t *testing.T) {
	meal, warnings := BuildMeal(testDataset(), &detection.Response{MealName: "No meal detected"})
	require.NotNil(t, meal)
	assert.Empty(t, warnings)
	assert.Empty(t, meal.Portions)
	assert.Equal(t, 0.0, meal.CombinedFootprint())

	meal, _ = BuildMeal(testDataset(), nil)
	require.NotNil(t, meal)
	assert.Empty(t, meal.Portions)
}

func TestBuildMealSharesDatasetEntries(t *testing.T) {
	ds := testDataset()
	meal, _ := BuildMeal(ds, &detection.Response{Detections: []detection.Detection{
		{OriginalLabel: "rice", CanonicalName: "Rice", PortionKg: 0.1},
		{OriginalLabel: "more rice", CanonicalName: "Rice", PortionKg: 0.1},
	}})

	require.Len(t, meal.Portions, 2)
	assert.Same(t, ds["Rice"], meal.Portions[0].Entry)
	assert.Same(t, meal.Portions[0].Entry, meal.Portions[1].Entry)
}

const csvData = `Entity,Group,GHG,a,b,c,Land,d,e,f,Eutrophication,g,h,i,j,k,l,m,Water
Rice,Grains,2.5,0,0,0,2.8,0,0,0,9.5,0,0,0,0,0,0,0,2248
Chicken breast,Meat,9.87,0,0,0,12.2,0,0,0,65,0,0,0,0,0,0,0,660
`

func TestAnalyzePayloadEndToEnd(t *testing.T) {
	ds, err := dataset.Read(strings.NewReader(csvData), dataset.DefaultLayout)
	require.NoError(t, err)

	payload := "```json\n" + `{
  "mealName": "Chicken and rice",
  "detectedItems": [
    {"originalLabel": "rice", "canonicalName": "Rice", "portionKg": 0.2, "confidence": 0.9},
    {"originalLabel": "chicken", "canonicalName": "Chicken breast", "portionKg": 0.1, "confidence": 0.8},
    {"originalLabel": "gravy", "canonicalName": "other", "portionKg": 0.03},
    {"originalLabel": "peas", "canonicalName": "Peas"}
  ]
}` + "\n```"

	res, err := NewAnalyzer(ds, nil).AnalyzePayload(payload)
	require.NoError(t, err)

	assert.Equal(t, "Chicken and rice", res.Meal.Name)
	require.Len(t, res.Meal.Portions, 2)
	assert.InDelta(t, 0.5+0.987, res.Meal.TotalCarbon(), tolerance)
	assert.InDelta(t, 1.9+6.5, res.Meal.TotalNitrogen(), tolerance)
	assert.InDelta(t, 449.6+66, res.Meal.TotalWater(), tolerance)

	require.Len(t, res.Warnings, 2)
	assert.Equal(t, models.WarnMalformedItem, res.Warnings[0].Kind)
	assert.Equal(t, models.WarnUnresolvedDetection, res.Warnings[1].Kind)
	assert.Equal(t, "gravy", res.Warnings[1].Subject)

	s := res.Summary()
	assert.Len(t, s.Warnings, 2)
	assert.InDelta(t, s.Totals.Carbon+s.Totals.Nitrogen, s.Totals.Combined, tolerance)
}

func TestAnalyzePayloadMalformed(t *testing.T) {
	_, err := NewAnalyzer(testDataset(), nil).AnalyzePayload("Sorry, I cannot see any food.")
	assert.ErrorIs(t, err, detection.ErrMalformedResponse)
}

func TestAnalyzeUsesRecognizer(t *testing.T) {
	rec := recognition.StaticRecognizer{Payload: `{"mealName": "Rice", "detectedItems": [{"originalLabel": "rice", "canonicalName": "Rice", "portionKg": 0.2}]}`}

	res, err := NewAnalyzer(testDataset(), rec).Analyze(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Meal.TotalCarbon(), tolerance)
}

type failingRecognizer struct{}

func (failingRecognizer) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	return "", errors.New("connection refused")
}

func TestAnalyzeRecognizerFailure(t *testing.T) {
	_, err := NewAnalyzer(testDataset(), failingRecognizer{}).Analyze(context.Background(), []byte("img"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	_, err = NewAnalyzer(testDataset(), nil).Analyze(context.Background(), []byte("img"), "")
	assert.ErrorIs(t, err, ErrNoRecognizer)
}
