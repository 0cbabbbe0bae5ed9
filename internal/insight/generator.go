// Package insight asks a language model for a short plain-language summary
// of the last week of day aggregates.
package insight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/lox/recoverytrack/internal/httputil"
	"github.com/lox/recoverytrack/internal/metrics"
	"github.com/lox/recoverytrack/internal/models"
)

var ErrNoData = errors.New("no recent data to summarise")

const requestTimeout = 45 * time.Second

const systemPrompt = `You summarise a patient's self-recorded recovery vitals for the patient.
Write three or four short sentences in plain language. Mention trends and any
values that moved noticeably. Do not diagnose, do not recommend medication, and
suggest contacting a clinician only if a value is clearly outside normal ranges.`

// Cache stores generated summaries. identity.MemoryKV and identity.RedisKV
// both satisfy it.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type Generator struct {
	client openai.Client
	model  string
	cache  Cache
	ttl    time.Duration
	log    *zap.Logger
}

// NewGenerator returns a generator using apiKey. cache may be nil.
func NewGenerator(apiKey string, cache Cache, logger *zap.Logger, opts ...option.RequestOption) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := openai.NewClient(append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httputil.NewClient(requestTimeout)),
	}, opts...)...)

	return &Generator{
		client: client,
		model:  openai.ChatModelGPT4oMini,
		cache:  cache,
		ttl:    6 * time.Hour,
		log:    logger.With(zap.String("component", "insight")),
	}, nil
}

// Summarise returns a narrative for days. Identical inputs are served from
// the cache until it expires.
func (g *Generator) Summarise(ctx context.Context, days []models.DayAggregate) (string, error) {
	prompt := BuildPrompt(days)
	if prompt == "" {
		return "", ErrNoData
	}

	key := cacheKey(g.model, prompt)
	if g.cache != nil {
		if text, err := g.cache.Get(ctx, key); err == nil {
			return text, nil
		}
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	metrics.InsightLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no summary returned")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty summary returned")
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, text, g.ttl); err != nil {
			g.log.Warn("cache summary failed", zap.Error(err))
		}
	}
	g.log.Info("generated summary", zap.Int("days", len(days)), zap.Duration("took", time.Since(start)))
	return text, nil
}

func cacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\n" + prompt))
	return "insight:" + hex.EncodeToString(sum[:])
}

// BuildPrompt renders one line per day. It returns "" when there is nothing
// to describe.
func BuildPrompt(days []models.DayAggregate) string {
	if len(days) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Daily values (one line per day, '-' means not recorded):\n")
	for _, d := range days {
		v, s := d.Vitals, d.Symptoms
		bp := "-"
		if v.Systolic.Valid && v.Diastolic.Valid {
			bp = fmt.Sprintf("%.0f/%.0f mmHg", v.Systolic.Float64, v.Diastolic.Float64)
		}
		fmt.Fprintf(&b, "%s: temperature %s, blood pressure %s, heart rate %s, oxygen %s, weight %s, pain %s, fatigue %s, mood %s (%d entries)\n",
			d.Date,
			format(v.Temperature, "%.1f°C"),
			bp,
			format(v.HeartRate, "%.0f bpm"),
			format(v.OxygenSaturation, "%.0f%%"),
			format(v.Weight, "%.1f kg"),
			format(s.Pain, "%.0f/10"),
			format(s.Fatigue, "%.0f/10"),
			format(s.Mood, "%.0f/10"),
			len(d.Records),
		)
	}
	return b.String()
}

func format(r models.Reading, layout string) string {
	if !r.Valid {
		return "-"
	}
	return fmt.Sprintf(layout, r.Float64)
}
