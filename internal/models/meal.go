// internal/models/meal.go
package models

import (
	"time"
)

// ReferenceEntry holds the per-kilogram environmental metrics of one food.
type ReferenceEntry struct {
	Name          string  `json:"name"`
	CarbonPerKg   float64 `json:"carbon_per_kg"`   // kg CO2e
	WaterPerKg    float64 `json:"water_per_kg"`    // L
	LandPerKg     float64 `json:"land_per_kg"`     // m2
	NitrogenPerKg float64 `json:"nitrogen_per_kg"` // g N
}

// NewReferenceEntry builds an entry, clamping negative metrics to zero.
func NewReferenceEntry(name string, carbon, water, land, nitrogen float64) *ReferenceEntry {
	return &ReferenceEntry{
		Name:          name,
		CarbonPerKg:   nonNegative(carbon),
		WaterPerKg:    nonNegative(water),
		LandPerKg:     nonNegative(land),
		NitrogenPerKg: nonNegative(nitrogen),
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Portion is a weighed amount of a reference food. The entry is shared with
// the dataset that owns it.
type Portion struct {
	Entry *ReferenceEntry
	Kg    float64
}

func NewPortion(entry *ReferenceEntry, kg float64) *Portion {
	return &Portion{Entry: entry, Kg: nonNegative(kg)}
}

func (p *Portion) Carbon() float64 {
	if p == nil || p.Entry == nil {
		return 0
	}
	return p.Kg * p.Entry.CarbonPerKg
}

func (p *Portion) Water() float64 {
	if p == nil || p.Entry == nil {
		return 0
	}
	return p.Kg * p.Entry.WaterPerKg
}

func (p *Portion) Land() float64 {
	if p == nil || p.Entry == nil {
		return 0
	}
	return p.Kg * p.Entry.LandPerKg
}

func (p *Portion) Nitrogen() float64 {
	if p == nil || p.Entry == nil {
		return 0
	}
	return p.Kg * p.Entry.NitrogenPerKg
}

// Meal is a named set of portions in detection order.
// Totals are recomputed on every call.
type Meal struct {
	Name     string
	Portions []*Portion
}

func NewMeal(name string, portions []*Portion) *Meal {
	cp := make([]*Portion, len(portions))
	copy(cp, portions)
	return &Meal{Name: name, Portions: cp}
}

func (m *Meal) sum(metric func(*Portion) float64) float64 {
	total := 0.0
	for _, p := range m.Portions {
		total += metric(p)
	}
	return total
}

func (m *Meal) TotalCarbon() float64   { return m.sum((*Portion).Carbon) }
func (m *Meal) TotalWater() float64    { return m.sum((*Portion).Water) }
func (m *Meal) TotalLand() float64     { return m.sum((*Portion).Land) }
func (m *Meal) TotalNitrogen() float64 { return m.sum((*Portion).Nitrogen) }

// CombinedFootprint adds total carbon (kg CO2e) and total nitrogen (g N).
// The units differ, so the result is a ranking score and not a physical quantity.
func (m *Meal) CombinedFootprint() float64 {
	return m.TotalCarbon() + m.TotalNitrogen()
}

// Summary is the rendered view of a meal handed to reports, storage and API
// consumers.
type Summary struct {
	MealName string        `json:"mealName"`
	Items    []SummaryItem `json:"items"`
	Totals   Totals        `json:"totals"`
	Warnings []Warning     `json:"warnings,omitempty"`
}

type SummaryItem struct {
	Name      string  `json:"name"`
	PortionKg float64 `json:"portionKg"`
	Carbon    float64 `json:"carbonFootprint"`
	Water     float64 `json:"waterUsage"`
	Land      float64 `json:"landUsage"`
	Nitrogen  float64 `json:"nitrogenFootprint"`
}

type Totals struct {
	Carbon   float64 `json:"carbonFootprint"`
	Water    float64 `json:"waterUsage"`
	Land     float64 `json:"landUsage"`
	Nitrogen float64 `json:"nitrogenFootprint"`
	Combined float64 `json:"combinedFootprint"`
}

func (m *Meal) Summary() Summary {
	items := make([]SummaryItem, 0, len(m.Portions))
	for _, p := range m.Portions {
		if p == nil || p.Entry == nil {
			continue
		}
		items = append(items, SummaryItem{
			Name:      p.Entry.Name,
			PortionKg: p.Kg,
			Carbon:    p.Carbon(),
			Water:     p.Water(),
			Land:      p.Land(),
			Nitrogen:  p.Nitrogen(),
		})
	}
	return Summary{
		MealName: m.Name,
		Items:    items,
		Totals: Totals{
			Carbon:   m.TotalCarbon(),
			Water:    m.TotalWater(),
			Land:     m.TotalLand(),
			Nitrogen: m.TotalNitrogen(),
			Combined: m.CombinedFootprint(),
		},
	}
}

// MealRecord is a stored analysis.
type MealRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "image", "payload"
	Summary
}
