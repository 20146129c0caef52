// internal/report/report.go
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"meal-footprint/internal/models"
)

// Text renders a summary as a human-readable report.
func Text(s models.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Meal: %s\n", s.MealName)
	b.WriteString("Items:\n")
	if len(s.Items) == 0 {
		b.WriteString("- none recognized\n")
	}
	for _, item := range s.Items {
		fmt.Fprintf(&b, "- %s (%skg)\n", item.Name, strconv.FormatFloat(item.PortionKg, 'f', -1, 64))
	}

	b.WriteString("\nCalculations:\n")
	fmt.Fprintf(&b, "Total Carbon Footprint: %.2f kgCO2e\n", s.Totals.Carbon)
	fmt.Fprintf(&b, "Total Water Usage: %.2f L\n", s.Totals.Water)
	fmt.Fprintf(&b, "Total Land Usage: %.2f m2\n", s.Totals.Land)
	fmt.Fprintf(&b, "Total Nitrogen Footprint: %.2f gN\n", s.Totals.Nitrogen)
	fmt.Fprintf(&b, "Combined Score (kgCO2e + gN): %.2f\n", s.Totals.Combined)

	if len(s.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range s.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

// JSON renders a summary as an indented JSON document with totals rounded
// to two decimals.
func JSON(s models.Summary) ([]byte, error) {
	s.Totals = models.Totals{
		Carbon:   round2(s.Totals.Carbon),
		Water:    round2(s.Totals.Water),
		Land:     round2(s.Totals.Land),
		Nitrogen: round2(s.Totals.Nitrogen),
		Combined: round2(s.Totals.Combined),
	}
	if s.Items == nil {
		s.Items = []models.SummaryItem{}
	}
	return json.MarshalIndent(s, "", "  ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
