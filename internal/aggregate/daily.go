// Package aggregate groups canonical records by local calendar day and
// reduces each day to a per-field statistic over a trailing window.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lox/recoverytrack/internal/models"
)

const (
	DefaultWindowDays = 7
	DefaultTimeFormat = "3:04 PM"
)

type Aggregator struct {
	stat       Statistic
	loc        *time.Location
	windowDays int
	timeFormat string
	now        func() time.Time
}

type Option func(*Aggregator)

// WithWindowDays sets both the trailing window and the cap on returned days.
func WithWindowDays(days int) Option {
	return func(a *Aggregator) {
		if days > 0 {
			a.windowDays = days
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func WithTimeFormat(layout string) Option {
	return func(a *Aggregator) { a.timeFormat = layout }
}

func New(stat Statistic, loc *time.Location, opts ...Option) *Aggregator {
	if stat == nil {
		stat = Median
	}
	if loc == nil {
		loc = time.Local
	}
	a := &Aggregator{
		stat:       stat,
		loc:        loc,
		windowDays: DefaultWindowDays,
		timeFormat: DefaultTimeFormat,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) Location() *time.Location { return a.loc }

// field pairs a record accessor with the aggregate slot it reduces into.
type field struct {
	get func(models.Record) models.Reading
	set func(*models.DayAggregate, models.Reading)
}

var fields = []field{
	{func(r models.Record) models.Reading { return r.Vitals.Temperature }, func(d *models.DayAggregate, v models.Reading) { d.Vitals.Temperature = v }},
	{func(r models.Record) models.Reading { return r.Vitals.Systolic }, func(d *models.DayAggregate, v models.Reading) { d.Vitals.Systolic = v }},
	{func(r models.Record) models.Reading { return r.Vitals.Diastolic }, func(d *models.DayAggregate, v models.Reading) { d.Vitals.Diastolic = v }},
	{func(r models.Record) models.Reading { return r.Vitals.HeartRate }, func(d *models.DayAggregate, v models.Reading) { d.Vitals.HeartRate = v }},
	{func(r models.Record) models.Reading { return r.Vitals.OxygenSaturation }, func(d *models.DayAggregate, v models.Reading) { d.Vitals.OxygenSaturation = v }},
	{func(r models.Record) models.Reading { return r.Vitals.Weight }, func(d *models.DayAggregate, v models.Reading) { d.Vitals.Weight = v }},
	{func(r models.Record) models.Reading { return r.Symptoms.Pain }, func(d *models.DayAggregate, v models.Reading) { d.Symptoms.Pain = v }},
	{func(r models.Record) models.Reading { return r.Symptoms.Fatigue }, func(d *models.DayAggregate, v models.Reading) { d.Symptoms.Fatigue = v }},
	{func(r models.Record) models.Reading { return r.Symptoms.Mood }, func(d *models.DayAggregate, v models.Reading) { d.Symptoms.Mood = v }},
}

// Daily returns at most windowDays aggregates, ascending by date, for the days
// on or after (now - windowDays) in the aggregator's location. Days without
// records are not synthesised.
func (a *Aggregator) Daily(records []models.Record) []models.DayAggregate {
	groups := make(map[string][]models.Record)
	for _, r := range records {
		key := r.Date.In(a.loc).Format(models.DateLayout)
		groups[key] = append(groups[key], r)
	}

	cutoff := a.now().In(a.loc).AddDate(0, 0, -a.windowDays).Format(models.DateLayout)
	keys := make([]string, 0, len(groups))
	for k := range groups {
		if k < cutoff {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > a.windowDays {
		keys = keys[len(keys)-a.windowDays:]
	}

	out := make([]models.DayAggregate, 0, len(keys))
	for _, k := range keys {
		out = append(out, a.day(k, groups[k]))
	}
	return out
}

func (a *Aggregator) day(key string, records []models.Record) models.DayAggregate {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date.Equal(records[j].Date) {
			return records[i].ID < records[j].ID
		}
		return records[i].Date.Before(records[j].Date)
	})

	day, _ := time.ParseInLocation(models.DateLayout, key, a.loc)
	agg := models.DayAggregate{
		Date:    key,
		Day:     day,
		Records: make([]models.RecordDetail, 0, len(records)),
	}

	values := make([]float64, 0, len(records))
	for _, f := range fields {
		values = values[:0]
		for _, r := range records {
			if v := f.get(r); v.Valid && finite(v.Float64) {
				values = append(values, v.Float64)
			}
		}
		if s, ok := a.stat(values); ok && finite(s) {
			f.set(&agg, models.Some(s))
		}
	}
	if agg.Vitals.Systolic.Valid && agg.Vitals.Diastolic.Valid {
		agg.Vitals.BloodPressure = fmt.Sprintf("%.0f/%.0f", agg.Vitals.Systolic.Float64, agg.Vitals.Diastolic.Float64)
	}

	for _, r := range records {
		agg.Records = append(agg.Records, models.RecordDetail{
			Record: r,
			Time:   r.Date.In(a.loc).Format(a.timeFormat),
		})
	}
	return agg
}

// DateKey truncates "2024-11-11T10:00:00Z" or "2024-11-11" to "2024-11-11".
func DateKey(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	return s
}

// Lookup returns the records of the aggregate whose date matches date after
// truncation. It reports false when there is no such day.
func Lookup(aggs []models.DayAggregate, date string) ([]models.RecordDetail, bool) {
	key := DateKey(date)
	for _, d := range aggs {
		if d.Date == key {
			return d.Records, true
		}
	}
	return nil, false
}
