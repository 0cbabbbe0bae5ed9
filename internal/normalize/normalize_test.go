package normalize

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lox/recoverytrack/internal/models"
)

var fixedNow = time.Date(2024, 11, 12, 9, 30, 0, 0, time.UTC)

func testOptions(fb Fallback) Options {
	return Options{
		Fallback: fb,
		Now:      func() time.Time { return fixedNow },
		Location: time.UTC,
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   float64
		wantOK bool
	}{
		{"float", 37.2, 37.2, true},
		{"int", 72, 72, true},
		{"json number", json.Number("98"), 98, true},
		{"string", "36.6", 36.6, true},
		{"decimal comma", "36,6", 36.6, true},
		{"padded string", " 120 ", 120, true},
		{"empty string", "", 0, false},
		{"text", "high", 0, false},
		{"trailing garbage", "37abc", 0, false},
		{"hex float", "0x1p4", 0, false},
		{"signed hex", "-0X10", 0, false},
		{"nan string", "NaN", 0, false},
		{"inf string", "Inf", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
		{"object", map[string]any{"v": 1}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Number(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("Number(%v) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Number(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-11-11T10:00:00Z", time.Date(2024, 11, 11, 10, 0, 0, 0, time.UTC), false},
		{"2024-11-11T10:00:00.123Z", time.Date(2024, 11, 11, 10, 0, 0, 123000000, time.UTC), false},
		{"2024-11-11T12:00:00+02:00", time.Date(2024, 11, 11, 10, 0, 0, 0, time.UTC), false},
		{"2024-11-11T10:00:00", time.Date(2024, 11, 11, 10, 0, 0, 0, time.UTC), false},
		{"2024-11-11", time.Date(2024, 11, 11, 0, 0, 0, 0, time.UTC), false},
		{"", time.Time{}, true},
		{"yesterday", time.Time{}, true},
		{"2024-13-40", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in, time.UTC)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecode_FullRecord(t *testing.T) {
	raw := models.RawRecord(`{
		"date": "2024-11-11T10:00:00Z",
		"vitals": {
			"temperature": "37,5",
			"bloodPressure": "120/80",
			"heartRate": 72,
			"oxygenSaturation": "98",
			"weight": 70.4,
			"woundHealing": "<b>closing</b> nicely",
			"woundImage": "https://img.example/w1.jpg"
		},
		"symptoms": {"pain": "3", "fatigue": 5, "mood": 7}
	}`)

	d := Decode("1731319200000", raw, testOptions(FallbackNull))
	if !d.OK() {
		t.Fatalf("Decode: %v", d.Err)
	}
	r := d.Record
	if r.ID != "1731319200000" {
		t.Errorf("ID = %q", r.ID)
	}
	if !r.Date.Equal(time.Date(2024, 11, 11, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", r.Date)
	}
	if r.Vitals.Temperature != models.Some(37.5) {
		t.Errorf("Temperature = %v, want 37.5", r.Vitals.Temperature)
	}
	if r.Vitals.Systolic != models.Some(120) || r.Vitals.Diastolic != models.Some(80) {
		t.Errorf("BP = %v/%v, want 120/80", r.Vitals.Systolic, r.Vitals.Diastolic)
	}
	if r.Vitals.BloodPressure != "120/80" {
		t.Errorf("BloodPressure = %q", r.Vitals.BloodPressure)
	}
	if r.Vitals.HeartRate != models.Some(72) || r.Vitals.OxygenSaturation != models.Some(98) || r.Vitals.Weight != models.Some(70.4) {
		t.Errorf("vitals = %+v", r.Vitals)
	}
	if r.Vitals.WoundHealing != "closing nicely" {
		t.Errorf("WoundHealing = %q", r.Vitals.WoundHealing)
	}
	if r.Vitals.WoundImage == nil || *r.Vitals.WoundImage != "https://img.example/w1.jpg" {
		t.Errorf("WoundImage = %v", r.Vitals.WoundImage)
	}
	if r.Symptoms.Pain != models.Some(3) || r.Symptoms.Fatigue != models.Some(5) || r.Symptoms.Mood != models.Some(7) {
		t.Errorf("symptoms = %+v", r.Symptoms)
	}
}

func TestDecode_MissingFields(t *testing.T) {
	tests := []struct {
		name     string
		fallback Fallback
		want     models.Reading
	}{
		{"null fallback", FallbackNull, models.Reading{}},
		{"zero fallback", FallbackZero, models.Some(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decode("k", models.RawRecord(`{"date":"2024-11-11T10:00:00Z","vitals":{"temperature":"abc"}}`), testOptions(tt.fallback))
			if !d.OK() {
				t.Fatalf("Decode: %v", d.Err)
			}
			r := d.Record
			for name, got := range map[string]models.Reading{
				"temperature": r.Vitals.Temperature,
				"heartRate":   r.Vitals.HeartRate,
				"systolic":    r.Vitals.Systolic,
				"pain":        r.Symptoms.Pain,
				"mood":        r.Symptoms.Mood,
			} {
				if got != tt.want {
					t.Errorf("%s = %v, want %v", name, got, tt.want)
				}
			}
			if r.Vitals.WoundImage != nil {
				t.Errorf("WoundImage = %v, want nil", *r.Vitals.WoundImage)
			}
		})
	}
}

func TestDecode_NestedNotObjects(t *testing.T) {
	d := Decode("k", models.RawRecord(`{"date":"2024-11-11","vitals":"oops","symptoms":[1,2]}`), testOptions(FallbackNull))
	if !d.OK() {
		t.Fatalf("Decode: %v", d.Err)
	}
	if d.Record.Vitals.Temperature.Valid || d.Record.Symptoms.Pain.Valid {
		t.Errorf("expected no readings, got %+v", d.Record)
	}
}

func TestDecode_DateDefaultsToNow(t *testing.T) {
	for _, raw := range []string{`{}`, `{"date":null}`, `{"date":""}`, `{"date":"  "}`} {
		d := Decode("k", models.RawRecord(raw), testOptions(FallbackNull))
		if !d.OK() {
			t.Fatalf("Decode(%s): %v", raw, d.Err)
		}
		if !d.Record.Date.Equal(fixedNow) {
			t.Errorf("Decode(%s) Date = %v, want %v", raw, d.Record.Date, fixedNow)
		}
	}
}

func TestDecode_EpochMillisDate(t *testing.T) {
	d := Decode("k", models.RawRecord(`{"date":1731319200000}`), testOptions(FallbackNull))
	if !d.OK() {
		t.Fatalf("Decode: %v", d.Err)
	}
	if want := time.UnixMilli(1731319200000); !d.Record.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", d.Record.Date, want)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"date":`},
		{"empty", ``},
		{"array", `[1,2,3]`},
		{"string", `"hello"`},
		{"null", `null`},
		{"bad date", `{"date":"not a date"}`},
		{"date wrong type", `{"date":true}`},
		{"fractional epoch", `{"date":1.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decode("bad", models.RawRecord(tt.raw), testOptions(FallbackNull))
			if d.OK() {
				t.Fatalf("Decode(%s) succeeded, want malformed", tt.raw)
			}
			if !errors.Is(d.Err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", d.Err)
			}
			if d.Err.Key != "bad" {
				t.Errorf("Key = %q, want bad", d.Err.Key)
			}
		})
	}
}

func TestDecode_BloodPressureSources(t *testing.T) {
	tests := []struct {
		name     string
		vitals   string
		sys, dia models.Reading
		combined string
	}{
		{"combined string", `{"bloodPressure":"130 / 85"}`, models.Some(130), models.Some(85), "130 / 85"},
		{"explicit fields", `{"systolic":118,"diastolic":"76"}`, models.Some(118), models.Some(76), "118/76"},
		{"explicit wins", `{"systolic":110,"diastolic":70,"bloodPressure":"140/90"}`, models.Some(110), models.Some(70), "140/90"},
		{"partial explicit", `{"systolic":110,"bloodPressure":"140/90"}`, models.Some(110), models.Some(90), "140/90"},
		{"garbage", `{"bloodPressure":"high"}`, models.Reading{}, models.Reading{}, "high"},
		{"absent", `{}`, models.Reading{}, models.Reading{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := models.RawRecord(`{"date":"2024-11-11","vitals":` + tt.vitals + `}`)
			d := Decode("k", raw, testOptions(FallbackNull))
			if !d.OK() {
				t.Fatalf("Decode: %v", d.Err)
			}
			v := d.Record.Vitals
			if v.Systolic != tt.sys || v.Diastolic != tt.dia {
				t.Errorf("BP = %v/%v, want %v/%v", v.Systolic, v.Diastolic, tt.sys, tt.dia)
			}
			if v.BloodPressure != tt.combined {
				t.Errorf("BloodPressure = %q, want %q", v.BloodPressure, tt.combined)
			}
		})
	}
}

func TestRecords_DropsOnlyMalformed(t *testing.T) {
	raw := map[string]models.RawRecord{
		"3": models.RawRecord(`{"date":"2024-11-10T08:00:00Z","vitals":{"temperature":36.9}}`),
		"1": models.RawRecord(`{"date":"garbage"}`),
		"2": models.RawRecord(`{"date":"2024-11-11T08:00:00Z"}`),
		"4": models.RawRecord(`not json`),
	}

	res := Records(raw, testOptions(FallbackNull))
	if len(res.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(res.Records))
	}
	if len(res.Records)+len(res.Dropped) != len(raw) {
		t.Errorf("records + dropped = %d, want %d", len(res.Records)+len(res.Dropped), len(raw))
	}
	if res.Records[0].ID != "2" || res.Records[1].ID != "3" {
		t.Errorf("IDs = %s,%s, want key order 2,3", res.Records[0].ID, res.Records[1].ID)
	}
	for _, r := range res.Records {
		if r.Date.IsZero() {
			t.Errorf("record %s has zero date", r.ID)
		}
	}
}

func TestRecords_Empty(t *testing.T) {
	res := Records(nil, testOptions(FallbackNull))
	if len(res.Records) != 0 || len(res.Dropped) != 0 {
		t.Errorf("Records(nil) = %+v, want empty", res)
	}
}
