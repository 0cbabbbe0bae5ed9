package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"github.com/lox/recoverytrack/internal/api"
	"github.com/lox/recoverytrack/internal/chart"
	"github.com/lox/recoverytrack/internal/identity"
	"github.com/lox/recoverytrack/internal/ingest"
	"github.com/lox/recoverytrack/internal/insight"
	"github.com/lox/recoverytrack/internal/models"
)

type ServeCmd struct {
	Port         string `help:"HTTP server port." default:"8080" env:"PORT"`
	OpenAIAPIKey string `name:"openai-api-key" help:"Enables weekly insights." env:"OPENAI_API_KEY"`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	auth, err := g.auth(a)
	if err != nil {
		return err
	}

	opts := []api.Option{
		api.WithStatistic(g.Statistic),
		api.WithWindowDays(g.WindowDays),
		api.WithNotFoundPolicy(g.policy()),
		api.WithFallback(g.fallback()),
	}
	if gen, err := insight.NewGenerator(c.OpenAIAPIKey, a.kv, a.log); err != nil {
		a.log.Info("insights disabled", zap.Error(err))
	} else {
		opts = append(opts, api.WithInsight(gen))
	}

	server := api.NewServer(a.store, auth, c.Port, a.loc, a.log, opts...)
	a.log.Info("starting server", zap.String("port", c.Port), zap.String("timezone", a.loc.String()))
	return server.Run(ctx)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	version, err := a.store.MigrationVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d\n", version)
	return nil
}

type SignupCmd struct {
	Email    string `arg:"" help:"Account email."`
	Password string `help:"Account password." env:"RECOVERYTRACK_PASSWORD" required:""`
	Name     string `help:"Name for the profile."`
}

func (c *SignupCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	auth, err := g.auth(a)
	if err != nil {
		return err
	}
	id, token, err := auth.SignUp(ctx, c.Email, c.Password)
	if err != nil {
		return err
	}
	if c.Name != "" {
		if err := a.store.SaveProfile(ctx, models.Profile{UserID: id.UserID, Name: c.Name}); err != nil {
			return err
		}
	}
	fmt.Printf("user %s\ntoken %s\n", id.UserID, token)
	return nil
}

type AddCmd struct {
	Email         string `arg:"" help:"Account email."`
	Temperature   string `short:"t" help:"Body temperature in °C." required:""`
	BloodPressure string `name:"bp" help:"Blood pressure as systolic/diastolic."`
	HeartRate     string `help:"Heart rate in bpm."`
	Oxygen        string `help:"Oxygen saturation in %."`
	Weight        string `help:"Weight in kg."`
	Pain          string `help:"Pain score 0-10."`
	Fatigue       string `help:"Fatigue score 0-10."`
	Mood          string `help:"Mood score 0-10."`
	Wound         string `help:"Notes on wound healing."`
}

func (c *AddCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.store.GetUserByEmail(ctx, identity.NormalizeEmail(c.Email))
	if err != nil {
		return fmt.Errorf("find user %q: %w", c.Email, err)
	}

	key, err := ingest.NewRecorder(a.store, a.log).Submit(ctx, u.ID, ingest.Form{
		Pain:             c.Pain,
		Fatigue:          c.Fatigue,
		Mood:             c.Mood,
		Temperature:      c.Temperature,
		BloodPressure:    c.BloodPressure,
		HeartRate:        c.HeartRate,
		OxygenSaturation: c.Oxygen,
		Weight:           c.Weight,
		WoundHealing:     c.Wound,
	})
	if err != nil {
		return err
	}
	fmt.Printf("recorded %s\n", key)
	return nil
}

type HistoryCmd struct {
	Email string `arg:"" help:"Account email."`
	Stat  string `help:"Statistic for this run (mean or median)."`
}

func (c *HistoryCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, state, err := g.loadHistory(ctx, a, c.Email, c.Stat)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}

type ChartCmd struct {
	Email  string `arg:"" help:"Account email."`
	Vital  string `help:"Vital to plot; empty plots every vital."`
	Source string `help:"Plot day aggregates or individual records." enum:"aggregate,records" default:"aggregate"`
	Out    string `short:"o" help:"Output HTML file." default:"chart.html" type:"path"`
}

func (c *ChartCmd) Run(g *Globals) error {
	if !chart.Known(c.Vital) {
		return fmt.Errorf("unknown vital %q, expected one of %v", c.Vital, chart.Selectors())
	}
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, state, err := g.loadHistory(ctx, a, c.Email, "")
	if err != nil {
		return err
	}

	var s chart.Series
	if c.Source == "records" {
		records := append([]models.Record(nil), state.Records...)
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Date.Before(records[j].Date)
		})
		s = chart.Build(records, c.Vital, a.loc)
	} else {
		s = chart.Build(state.History, c.Vital, a.loc)
	}
	if s.Empty() {
		return fmt.Errorf("nothing to plot for %q", c.Vital)
	}

	f, err := os.Create(c.Out)
	if err != nil {
		return err
	}
	if err := chart.RenderHTML(f, s, chart.Title(c.Vital)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", c.Out)
	return nil
}

type DayCmd struct {
	Email string `arg:"" help:"Account email."`
	Date  string `arg:"" help:"Day as YYYY-MM-DD or a timestamp on that day."`
}

func (c *DayCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	l, _, err := g.loadHistory(ctx, a, c.Email, "")
	if err != nil {
		return err
	}
	records, ok := l.Lookup(c.Date)
	if !ok {
		return fmt.Errorf("no entries on %s", c.Date)
	}
	for _, r := range records {
		v := r.Vitals
		fmt.Printf("%s  temperature %s  blood pressure %s  heart rate %s\n",
			r.Time, reading(v.Temperature), orDash(v.BloodPressure), reading(v.HeartRate))
	}
	return nil
}

func reading(r models.Reading) string {
	if !r.Valid {
		return "-"
	}
	return fmt.Sprintf("%g", r.Float64)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
