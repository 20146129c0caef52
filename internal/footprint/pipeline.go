// internal/footprint/pipeline.go
package footprint

import (
	"fmt"

	"meal-footprint/internal/detection"
	"meal-footprint/internal/models"
)

// Lookup resolves a canonical food name to its reference entry.
type Lookup interface {
	Lookup(name string) (*models.ReferenceEntry, bool)
}

// BuildMeal resolves every detection against the dataset. Detections whose
// canonical name is unknown are dropped and reported as warnings; the meal is
// always returned, possibly empty.
func BuildMeal(ds Lookup, resp *detection.Response) (*models.Meal, []models.Warning) {
	if resp == nil {
		return models.NewMeal("", nil), nil
	}

	var warnings []models.Warning
	portions := make([]*models.Portion, 0, len(resp.Detections))

	for _, d := range resp.Detections {
		entry, ok := ds.Lookup(d.CanonicalName)
		if !ok {
			warnings = append(warnings, models.Warning{
				Kind:    models.WarnUnresolvedDetection,
				Subject: d.OriginalLabel,
				Message: fmt.Sprintf("%q not found in dataset", d.CanonicalName),
			})
			continue
		}
		portions = append(portions, models.NewPortion(entry, d.PortionKg))
	}

	return models.NewMeal(resp.MealName, portions), warnings
}
