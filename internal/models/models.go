package models

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DateLayout is the calendar-day key used for grouping and lookups.
const DateLayout = "2006-01-02"

// Reading is an optional numeric measurement. It mirrors sql.NullFloat64 but
// marshals to a bare number or null.
type Reading struct {
	Float64 float64
	Valid   bool
}

// Some returns a valid reading. NaN and infinities are treated as missing.
func Some(v float64) Reading {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}
	}
	return Reading{Float64: v, Valid: true}
}

func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(r.Float64, 'f', -1, 64)), nil
}

func (r *Reading) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Reading{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Some(v)
	return nil
}

// Vitals holds physiological measurements. On a DayAggregate the numeric
// fields carry the per-day statistic and the free-text fields are empty.
type Vitals struct {
	Temperature      Reading `json:"temperature"`      // °C
	Systolic         Reading `json:"systolic"`         // mmHg
	Diastolic        Reading `json:"diastolic"`        // mmHg
	BloodPressure    string  `json:"bloodPressure"`    // "120/80"
	HeartRate        Reading `json:"heartRate"`        // bpm
	OxygenSaturation Reading `json:"oxygenSaturation"` // %
	Weight           Reading `json:"weight"`           // kg
	WoundHealing     string  `json:"woundHealing,omitempty"`
	WoundImage       *string `json:"woundImage"`
}

// Symptoms holds self-reported 0-10 scores.
type Symptoms struct {
	Pain    Reading `json:"pain"`
	Fatigue Reading `json:"fatigue"`
	Mood    Reading `json:"mood"`
}

// RawRecord is one stored entry exactly as written, keyed by its record key.
type RawRecord = json.RawMessage

// Record is the canonical form of one submitted entry.
type Record struct {
	ID       string    `json:"id"`
	Date     time.Time `json:"date"`
	Vitals   Vitals    `json:"vitals"`
	Symptoms Symptoms  `json:"symptoms"`
}

func (r Record) When() time.Time { return r.Date }
func (r Record) Measures() (Vitals, Symptoms) { return r.Vitals, r.Symptoms }

// RecordDetail is a Record with its display time of day, for drill-down.
type RecordDetail struct {
	Record
	Time string `json:"time"`
}

// DayAggregate is the per-day statistic over all records of that day.
type DayAggregate struct {
	Date     string         `json:"date"` // YYYY-MM-DD, local time
	Day      time.Time      `json:"-"`    // local midnight of Date
	Vitals   Vitals         `json:"vitals"`
	Symptoms Symptoms       `json:"symptoms"`
	Records  []RecordDetail `json:"records"`
}

func (d DayAggregate) When() time.Time { return d.Day }
func (d DayAggregate) Measures() (Vitals, Symptoms) { return d.Vitals, d.Symptoms }

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Profile holds the personal details shown on the profile screen.
type Profile struct {
	UserID           string    `json:"-"`
	Name             string    `json:"name"`
	Age              string    `json:"age"`
	Medications      string    `json:"medications"`
	ContactDetails   string    `json:"contactDetails"`
	EmergencyContact string    `json:"emergencyContact"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
