package ingest

const (
	FlagTemperatureOutOfRange   = "temperature_out_of_range"
	FlagHeartRateOutOfRange     = "heart_rate_out_of_range"
	FlagOxygenSaturationInvalid = "oxygen_saturation_invalid"
	FlagWeightOutOfRange        = "weight_out_of_range"
	FlagBloodPressureInvalid    = "blood_pressure_invalid"
	FlagSymptomScoreInvalid     = "symptom_score_invalid"
)

// ValidateEntry returns plausibility flags for a parsed entry. Absent
// readings are not flagged.
func ValidateEntry(e *Entry) []string {
	var flags []string

	if t := e.Vitals.Temperature; t != nil {
		if *t < 30 || *t > 45 {
			flags = append(flags, FlagTemperatureOutOfRange)
		}
	}

	if hr := e.Vitals.HeartRate; hr != nil {
		if *hr < 20 || *hr > 250 {
			flags = append(flags, FlagHeartRateOutOfRange)
		}
	}

	if o := e.Vitals.OxygenSaturation; o != nil {
		if *o < 50 || *o > 100 {
			flags = append(flags, FlagOxygenSaturationInvalid)
		}
	}

	if w := e.Vitals.Weight; w != nil {
		if *w < 1 || *w > 500 {
			flags = append(flags, FlagWeightOutOfRange)
		}
	}

	if sys, dia := e.Vitals.Systolic, e.Vitals.Diastolic; sys != nil && dia != nil {
		if *sys < 50 || *sys > 260 || *dia < 20 || *dia > 200 || *sys <= *dia {
			flags = append(flags, FlagBloodPressureInvalid)
		}
	}

	for _, s := range []*float64{e.Symptoms.Pain, e.Symptoms.Fatigue, e.Symptoms.Mood} {
		if s != nil && (*s < 0 || *s > 10) {
			flags = append(flags, FlagSymptomScoreInvalid)
			break
		}
	}

	return flags
}
