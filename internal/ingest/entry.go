// Package ingest turns a submitted entry form into a stored record payload.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lox/recoverytrack/internal/htmlutil"
	"github.com/lox/recoverytrack/internal/metrics"
	"github.com/lox/recoverytrack/internal/normalize"
)

var ErrInvalidTemperature = errors.New("please enter a valid temperature")

// Form is the entry screen's raw text input.
type Form struct {
	Pain             string `json:"pain"`
	Fatigue          string `json:"fatigue"`
	Mood             string `json:"mood"`
	Temperature      string `json:"temperature"`
	BloodPressure    string `json:"bloodPressure"`
	HeartRate        string `json:"heartRate"`
	OxygenSaturation string `json:"oxygenSaturation"`
	Weight           string `json:"weight"`
	WoundHealing     string `json:"woundHealing"`
	WoundImage       string `json:"woundImage"`
}

// Entry is the stored payload. Absent readings are written as null.
type Entry struct {
	Date     string        `json:"date"`
	Vitals   EntryVitals   `json:"vitals"`
	Symptoms EntrySymptoms `json:"symptoms"`
}

type EntryVitals struct {
	Temperature      *float64 `json:"temperature"`
	BloodPressure    string   `json:"bloodPressure,omitempty"`
	Systolic         *float64 `json:"systolic"`
	Diastolic        *float64 `json:"diastolic"`
	HeartRate        *float64 `json:"heartRate"`
	OxygenSaturation *float64 `json:"oxygenSaturation"`
	Weight           *float64 `json:"weight"`
	WoundHealing     string   `json:"woundHealing,omitempty"`
	WoundImage       *string  `json:"woundImage"`
}

type EntrySymptoms struct {
	Pain    *float64 `json:"pain"`
	Fatigue *float64 `json:"fatigue"`
	Mood    *float64 `json:"mood"`
}

// ValidationError lists the reasons an entry was refused.
type ValidationError struct {
	Flags []string
}

func (e *ValidationError) Error() string {
	return "entry rejected: " + strings.Join(e.Flags, ", ")
}

// Parse converts a form to an entry dated at. Temperature is required; every
// other field may be blank. Decimal commas are accepted.
func Parse(f Form, at time.Time) (*Entry, error) {
	temp, ok := normalize.Number(f.Temperature)
	if !ok {
		return nil, ErrInvalidTemperature
	}

	var flags []string
	optional := func(s, flag string) *float64 {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		v, ok := normalize.Number(s)
		if !ok {
			flags = append(flags, flag)
			return nil
		}
		return &v
	}

	e := &Entry{
		Date: at.UTC().Format(time.RFC3339Nano),
		Vitals: EntryVitals{
			Temperature:      &temp,
			HeartRate:        optional(f.HeartRate, FlagHeartRateOutOfRange),
			OxygenSaturation: optional(f.OxygenSaturation, FlagOxygenSaturationInvalid),
			Weight:           optional(f.Weight, FlagWeightOutOfRange),
			WoundHealing:     htmlutil.CleanFreeText(f.WoundHealing),
		},
		Symptoms: EntrySymptoms{
			Pain:    optional(f.Pain, FlagSymptomScoreInvalid),
			Fatigue: optional(f.Fatigue, FlagSymptomScoreInvalid),
			Mood:    optional(f.Mood, FlagSymptomScoreInvalid),
		},
	}

	if bp := strings.TrimSpace(f.BloodPressure); bp != "" {
		sys, dia, ok := normalize.SplitBloodPressure(bp)
		if !ok {
			flags = append(flags, FlagBloodPressureInvalid)
		} else {
			e.Vitals.Systolic, e.Vitals.Diastolic = &sys, &dia
			e.Vitals.BloodPressure = normalize.FormatBloodPressure(sys, dia)
		}
	}

	if img := strings.TrimSpace(f.WoundImage); img != "" {
		e.Vitals.WoundImage = &img
	}

	flags = append(flags, ValidateEntry(e)...)
	if len(flags) > 0 {
		return nil, &ValidationError{Flags: dedupe(flags)}
	}
	return e, nil
}

func dedupe(flags []string) []string {
	seen := make(map[string]bool, len(flags))
	out := flags[:0]
	for _, f := range flags {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// RecordWriter stores one payload under a time-derived key.
type RecordWriter interface {
	WriteRecord(ctx context.Context, userID string, at time.Time, payload []byte) (string, error)
}

type Recorder struct {
	records RecordWriter
	log     *zap.Logger
	now     func() time.Time
}

func NewRecorder(records RecordWriter, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		records: records,
		log:     logger.With(zap.String("component", "ingest")),
		now:     time.Now,
	}
}

// Submit validates f and writes it for userID, returning the record key.
// The caller re-fetches history to see the new entry.
func (r *Recorder) Submit(ctx context.Context, userID string, f Form) (string, error) {
	at := r.now()
	e, err := Parse(f, at)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			for _, flag := range ve.Flags {
				metrics.RecordsRejected.WithLabelValues(flag).Inc()
			}
			r.log.Info("entry rejected", zap.String("user_id", userID), zap.Strings("flags", ve.Flags))
		}
		return "", err
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	key, err := r.records.WriteRecord(ctx, userID, at, payload)
	if err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	metrics.RecordsWritten.Inc()
	r.log.Debug("entry stored", zap.String("user_id", userID), zap.String("key", key))
	return key, nil
}
