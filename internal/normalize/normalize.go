// Package normalize turns stored entries of any vintage into canonical records.
//
// Decoding is total: nothing in a stored payload can make it panic or abort
// the batch. Entries that cannot yield a valid timestamp are reported as
// malformed and left out of the result.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lox/recoverytrack/internal/models"
)

// Fallback selects what an absent or unparseable numeric field becomes.
type Fallback int

const (
	// FallbackNull leaves the reading invalid so statistics skip it.
	FallbackNull Fallback = iota
	// FallbackZero substitutes 0, matching older clients.
	FallbackZero
)

func (f Fallback) String() string {
	if f == FallbackZero {
		return "zero"
	}
	return "null"
}

// Options control decoding.
type Options struct {
	Fallback Fallback
	// Now supplies the timestamp for entries without a date. Defaults to time.Now.
	Now func() time.Time
	// Location interprets date-times that carry no zone. Defaults to time.Local.
	Location *time.Location
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) loc() *time.Location {
	if o.Location != nil {
		return o.Location
	}
	return time.Local
}

// ErrMalformed is wrapped by every MalformedError.
var ErrMalformed = errors.New("malformed record")

// MalformedError describes an entry that was dropped.
type MalformedError struct {
	Key    string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("record %s: %s", e.Key, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Decoded is the outcome for one entry: a record, or the reason there is none.
type Decoded struct {
	Record models.Record
	Err    *MalformedError
}

func (d Decoded) OK() bool { return d.Err == nil }

// Result is the outcome for a batch.
type Result struct {
	Records []models.Record
	Dropped []*MalformedError
}

// Records decodes every entry, keeping those with a valid date. Output is in
// record-key order; callers that need date order sort it themselves.
func Records(raw map[string]models.RawRecord, opts Options) Result {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := Result{Records: make([]models.Record, 0, len(raw))}
	for _, k := range keys {
		d := Decode(k, raw[k], opts)
		if !d.OK() {
			res.Dropped = append(res.Dropped, d.Err)
			continue
		}
		res.Records = append(res.Records, d.Record)
	}
	return res
}

// Decode converts a single stored entry.
func Decode(key string, raw models.RawRecord, opts Options) Decoded {
	fields, err := decodeObject(raw)
	if err != nil {
		return Decoded{Err: &MalformedError{Key: key, Reason: err.Error()}}
	}

	date, err := recordDate(fields["date"], opts)
	if err != nil {
		return Decoded{Err: &MalformedError{Key: key, Reason: err.Error()}}
	}

	vitals := object(fields["vitals"])
	symptoms := object(fields["symptoms"])

	rec := models.Record{
		ID:   key,
		Date: date,
		Vitals: models.Vitals{
			Temperature:      reading(vitals["temperature"], opts.Fallback),
			HeartRate:        reading(vitals["heartRate"], opts.Fallback),
			OxygenSaturation: reading(vitals["oxygenSaturation"], opts.Fallback),
			Weight:           reading(vitals["weight"], opts.Fallback),
			WoundHealing:     freeText(vitals["woundHealing"]),
			WoundImage:       url(vitals["woundImage"]),
		},
		Symptoms: models.Symptoms{
			Pain:    reading(symptoms["pain"], opts.Fallback),
			Fatigue: reading(symptoms["fatigue"], opts.Fallback),
			Mood:    reading(symptoms["mood"], opts.Fallback),
		},
	}
	rec.Vitals.Systolic, rec.Vitals.Diastolic, rec.Vitals.BloodPressure = bloodPressure(vitals, opts.Fallback)
	return Decoded{Record: rec}
}

func decodeObject(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload is %T, not an object", v)
	}
	return m, nil
}

// object returns v as a map, or an empty map for anything else.
func object(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func reading(v any, fb Fallback) models.Reading {
	f, ok := Number(v)
	return optional(f, ok, fb)
}
