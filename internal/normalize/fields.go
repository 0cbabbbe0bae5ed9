package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lox/recoverytrack/internal/htmlutil"
	"github.com/lox/recoverytrack/internal/models"
)

// Number parses a numeric field leniently. Numbers, numeric strings (with a
// decimal comma allowed) and json.Number are accepted; everything else,
// including NaN and infinities, reports false.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		p, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		s := strings.TrimSpace(strings.Replace(n, ",", ".", 1))
		if s == "" || isHex(s) {
			return 0, false
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// isHex reports a hexadecimal literal, which ParseFloat accepts but no
// client ever sends for a reading.
func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseDate accepts the timestamp shapes clients have written over time:
// RFC 3339 with or without fractional seconds, zone-less date-times (read in
// loc), and bare dates (read as UTC midnight).
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(models.DateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// recordDate resolves the entry timestamp. A missing or blank date means
// "now" so the entry stays visible; a present but unusable one is an error.
func recordDate(v any, opts Options) (time.Time, error) {
	switch d := v.(type) {
	case nil:
		return opts.now(), nil
	case string:
		if strings.TrimSpace(d) == "" {
			return opts.now(), nil
		}
		return ParseDate(d, opts.loc())
	case json.Number:
		ms, err := d.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("unparseable date %q", d.String())
		}
		return time.UnixMilli(ms), nil
	default:
		return time.Time{}, fmt.Errorf("date has type %T", v)
	}
}

// bloodPressure prefers explicit systolic/diastolic fields and falls back to
// parsing the combined "120/80" string.
func bloodPressure(vitals map[string]any, fb Fallback) (sys, dia models.Reading, combined string) {
	combined = text(vitals["bloodPressure"])
	s, sOK := Number(vitals["systolic"])
	d, dOK := Number(vitals["diastolic"])
	if !sOK || !dOK {
		if ps, pd, ok := SplitBloodPressure(combined); ok {
			if !sOK {
				s, sOK = ps, true
			}
			if !dOK {
				d, dOK = pd, true
			}
		}
	}
	sys, dia = optional(s, sOK, fb), optional(d, dOK, fb)
	if combined == "" && sOK && dOK {
		combined = FormatBloodPressure(s, d)
	}
	return sys, dia, combined
}

// SplitBloodPressure parses "120/80".
func SplitBloodPressure(s string) (systolic, diastolic float64, ok bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	systolic, sOK := Number(parts[0])
	diastolic, dOK := Number(parts[1])
	if !sOK || !dOK {
		return 0, 0, false
	}
	return systolic, diastolic, true
}

func FormatBloodPressure(systolic, diastolic float64) string {
	return strconv.FormatFloat(systolic, 'f', -1, 64) + "/" + strconv.FormatFloat(diastolic, 'f', -1, 64)
}

func optional(v float64, ok bool, fb Fallback) models.Reading {
	if ok {
		return models.Some(v)
	}
	if fb == FallbackZero {
		return models.Some(0)
	}
	return models.Reading{}
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func freeText(v any) string {
	return htmlutil.CleanFreeText(text(v))
}

func url(v any) *string {
	s := text(v)
	if s == "" {
		return nil
	}
	return &s
}
