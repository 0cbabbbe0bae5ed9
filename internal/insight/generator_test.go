package insight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lox/recoverytrack/internal/identity"
	"github.com/lox/recoverytrack/internal/models"
)

func sampleDays() []models.DayAggregate {
	return []models.DayAggregate{
		{
			Date: "2024-11-11",
			Vitals: models.Vitals{
				Temperature: models.Some(37.25),
				Systolic:    models.Some(120),
				Diastolic:   models.Some(80),
			},
			Symptoms: models.Symptoms{Pain: models.Some(3)},
			Records:  make([]models.RecordDetail, 2),
		},
		{Date: "2024-11-12", Vitals: models.Vitals{HeartRate: models.Some(71.6)}},
	}
}

func TestBuildPrompt(t *testing.T) {
	assert.Empty(t, BuildPrompt(nil))

	p := BuildPrompt(sampleDays())
	lines := strings.Split(strings.TrimSpace(p), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "2024-11-11: temperature 37.2°C, blood pressure 120/80 mmHg")
	assert.Contains(t, lines[1], "pain 3/10, fatigue -, mood -")
	assert.Contains(t, lines[1], "(2 entries)")
	assert.Contains(t, lines[2], "heart rate 72 bpm")
	assert.Contains(t, lines[2], "temperature -")
}

func TestNewGenerator_RequiresKey(t *testing.T) {
	_, err := NewGenerator("", nil, zap.NewNop())
	assert.Error(t, err)
}

func TestSummarise(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1731319200,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "  Temperatures were steady this week.  "}
			}]
		}`))
	}))
	defer srv.Close()

	g, err := NewGenerator("test-key", identity.NewMemoryKV(), zap.NewNop(), option.WithBaseURL(srv.URL+"/v1/"))
	require.NoError(t, err)

	ctx := context.Background()
	text, err := g.Summarise(ctx, sampleDays())
	require.NoError(t, err)
	assert.Equal(t, "Temperatures were steady this week.", text)

	again, err := g.Summarise(ctx, sampleDays())
	require.NoError(t, err)
	assert.Equal(t, text, again)
	assert.Equal(t, int32(1), calls.Load(), "second call is served from cache")

	_, err = g.Summarise(ctx, nil)
	assert.ErrorIs(t, err, ErrNoData)
}
