// Package chart projects records or day aggregates into labelled numeric
// series for a line-chart renderer.
//
// Renderers cannot plot gaps, so a missing reading is emitted as 0 and its
// index is listed in Dataset.NoData. A 0 at one of those indices means "no
// data", not a zero reading.
package chart

import (
	"fmt"
	"time"

	"github.com/lox/recoverytrack/internal/models"
)

// LabelLayout formats the x-axis labels.
const LabelLayout = "Jan 2"

// DefaultStrokeWidth is the line width every dataset is drawn with.
const DefaultStrokeWidth = 2

// BloodPressure is the composite selector that expands to systolic and
// diastolic datasets.
const BloodPressure = "bloodPressure"

// Measured is anything with a timestamp and a set of measurements:
// models.Record and models.DayAggregate both qualify.
type Measured interface {
	When() time.Time
	Measures() (models.Vitals, models.Symptoms)
}

type Color struct {
	R, G, B uint8
}

// RGBA renders the colour as a CSS rgba() string.
func (c Color) RGBA(opacity float64) string {
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", c.R, c.G, c.B, opacity)
}

func (c Color) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.RGBA(1) + `"`), nil
}

type Dataset struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Data        []float64 `json:"data"`
	Color       Color     `json:"color"`
	StrokeWidth int       `json:"strokeWidth"`
	NoData      []int     `json:"noData"`
}

type Series struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Empty reports whether there is nothing to render.
func (s Series) Empty() bool {
	return len(s.Labels) == 0 || len(s.Datasets) == 0
}

type measure struct {
	key   string
	label string
	color Color
	value func(models.Vitals, models.Symptoms) models.Reading
}

var measures = []measure{
	{"temperature", "Temperature (°C)", Color{255, 0, 0}, func(v models.Vitals, _ models.Symptoms) models.Reading { return v.Temperature }},
	{"systolic", "Systolic", Color{0, 128, 255}, func(v models.Vitals, _ models.Symptoms) models.Reading { return v.Systolic }},
	{"diastolic", "Diastolic", Color{0, 255, 255}, func(v models.Vitals, _ models.Symptoms) models.Reading { return v.Diastolic }},
	{"heartRate", "Heart Rate (bpm)", Color{0, 255, 0}, func(v models.Vitals, _ models.Symptoms) models.Reading { return v.HeartRate }},
	{"weight", "Weight (kg)", Color{255, 165, 0}, func(v models.Vitals, _ models.Symptoms) models.Reading { return v.Weight }},
	{"oxygenSaturation", "Oxygen Saturation (%)", Color{128, 0, 128}, func(v models.Vitals, _ models.Symptoms) models.Reading { return v.OxygenSaturation }},
	{"pain", "Pain Level", Color{255, 0, 0}, func(_ models.Vitals, s models.Symptoms) models.Reading { return s.Pain }},
	{"mood", "Mood Level", Color{0, 255, 0}, func(_ models.Vitals, s models.Symptoms) models.Reading { return s.Mood }},
	{"fatigue", "Fatigue Level", Color{0, 0, 255}, func(_ models.Vitals, s models.Symptoms) models.Reading { return s.Fatigue }},
}

func lookup(key string) (measure, bool) {
	for _, m := range measures {
		if m.key == key {
			return m, true
		}
	}
	return measure{}, false
}

// Selectors lists every accepted selector, composite first.
func Selectors() []string {
	keys := []string{BloodPressure}
	for _, m := range measures {
		keys = append(keys, m.key)
	}
	return keys
}

// Known reports whether selector names a field. The empty selector is the
// overview and is always known.
func Known(selector string) bool {
	if selector == "" || selector == BloodPressure {
		return true
	}
	_, ok := lookup(selector)
	return ok
}

// Title is a human label for a selector.
func Title(selector string) string {
	switch selector {
	case "":
		return "Overview"
	case BloodPressure:
		return "Blood Pressure (mmHg)"
	}
	if m, ok := lookup(selector); ok {
		return m.label
	}
	return selector
}

// Build returns one label per item, in input order, and the datasets for
// selector: every field for "", systolic and diastolic for BloodPressure, a
// single dataset for any other known field. Unknown selectors and empty input
// yield an empty series. Labels are formatted in loc; nil keeps each
// timestamp's own zone.
func Build[T Measured](items []T, selector string, loc *time.Location) Series {
	empty := Series{Labels: []string{}, Datasets: []Dataset{}}
	if len(items) == 0 || !Known(selector) {
		return empty
	}

	var selected []measure
	switch selector {
	case "":
		selected = measures
	case BloodPressure:
		sys, _ := lookup("systolic")
		dia, _ := lookup("diastolic")
		selected = []measure{sys, dia}
	default:
		m, _ := lookup(selector)
		selected = []measure{m}
	}

	s := Series{
		Labels:   make([]string, len(items)),
		Datasets: make([]Dataset, 0, len(selected)),
	}
	for i, it := range items {
		t := it.When()
		if loc != nil {
			t = t.In(loc)
		}
		s.Labels[i] = t.Format(LabelLayout)
	}
	for _, m := range selected {
		s.Datasets = append(s.Datasets, dataset(items, m))
	}
	return s
}

func dataset[T Measured](items []T, m measure) Dataset {
	ds := Dataset{
		Key:         m.key,
		Label:       m.label,
		Data:        make([]float64, len(items)),
		Color:       m.color,
		StrokeWidth: DefaultStrokeWidth,
		NoData:      []int{},
	}
	for i, it := range items {
		r := m.value(it.Measures())
		if !r.Valid {
			ds.NoData = append(ds.NoData, i)
			continue
		}
		ds.Data[i] = r.Float64
	}
	return ds
}
