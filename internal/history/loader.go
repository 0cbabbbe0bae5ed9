// Package history runs the fetch, normalize and aggregate pipeline for one
// viewer and holds its result.
//
// A Loader belongs to a single screen or request. Every run starts from
// scratch; a newer run supersedes an older one, and nothing is written to a
// Loader after Dispose.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lox/recoverytrack/internal/aggregate"
	"github.com/lox/recoverytrack/internal/identity"
	"github.com/lox/recoverytrack/internal/metrics"
	"github.com/lox/recoverytrack/internal/models"
	"github.com/lox/recoverytrack/internal/normalize"
)

var ErrUnauthenticated = errors.New("user not authenticated")

// UnauthenticatedMessage is the error shown while nobody is signed in.
const UnauthenticatedMessage = "User not authenticated."

// NoDataMessage is the error older clients showed for a user with no records.
const NoDataMessage = "No vitals data available."

// NotFoundPolicy decides what a user without any records looks like.
type NotFoundPolicy int

const (
	// EmptyIsNotError yields an empty history and no error.
	EmptyIsNotError NotFoundPolicy = iota
	// EmptyIsError also sets NoDataMessage, as older clients did.
	EmptyIsError
)

// RecordStore fetches every raw record for a user. exists is false when the
// user has none.
type RecordStore interface {
	FetchRecords(ctx context.Context, userID string) (records map[string]models.RawRecord, exists bool, err error)
}

// State is what a viewer renders. Error is empty unless the last run failed.
type State struct {
	History []models.DayAggregate `json:"history"`
	Records []models.Record       `json:"records"`
	Loading bool                  `json:"loading"`
	Error   string                `json:"error"`
}

func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	out := struct {
		plain
		Error *string `json:"error"`
	}{plain: plain(s)}
	if s.Error != "" {
		out.Error = &s.Error
	}
	return json.Marshal(out)
}

// Err converts the state's message back to an error, mapping the signed-out
// message to ErrUnauthenticated.
func (s State) Err() error {
	switch s.Error {
	case "":
		return nil
	case UnauthenticatedMessage:
		return ErrUnauthenticated
	default:
		return errors.New(s.Error)
	}
}

func emptyState() State {
	return State{History: []models.DayAggregate{}, Records: []models.Record{}}
}

type Option func(*Loader)

func WithPolicy(p NotFoundPolicy) Option {
	return func(l *Loader) { l.policy = p }
}

func WithFallback(fb normalize.Fallback) Option {
	return func(l *Loader) { l.fallback = fb }
}

// WithOnChange registers fn to receive every published state, including the
// Loading state at the start of a run. fn runs with no locks held.
func WithOnChange(fn func(State)) Option {
	return func(l *Loader) { l.onChange = fn }
}

type Loader struct {
	ids      identity.Source
	records  RecordStore
	agg      *aggregate.Aggregator
	log      *zap.Logger
	policy   NotFoundPolicy
	fallback normalize.Fallback
	onChange func(State)

	mu          sync.Mutex
	state       State
	gen         uint64
	cancel      context.CancelFunc
	disposed    bool
	unsubscribe func()
	wg          sync.WaitGroup
}

func New(ids identity.Source, records RecordStore, agg *aggregate.Aggregator, logger *zap.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{
		ids:     ids,
		records: records,
		agg:     agg,
		log:     logger.With(zap.String("component", "history")),
		state:   emptyState(),
	}
	l.state.Loading = true
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Load runs the pipeline once and returns the resulting state. A Load that
// is superseded by a later one, or that finishes after Dispose, leaves the
// state untouched.
func (l *Loader) Load(ctx context.Context) State {
	runCtx, gen, ok := l.begin(ctx)
	if !ok {
		return l.State()
	}

	start := time.Now()
	next := l.run(runCtx)
	metrics.HistoryLoadLatency.Observe(time.Since(start).Seconds())

	l.finish(gen, next)
	return l.State()
}

// Start loads immediately and again whenever the signed-in identity changes.
// Reloads run in the background with ctx as their parent.
func (l *Loader) Start(ctx context.Context) State {
	unsubscribe := l.ids.Subscribe(func(identity.Identity, bool) {
		l.mu.Lock()
		if l.disposed {
			l.mu.Unlock()
			return
		}
		l.wg.Add(1)
		l.mu.Unlock()
		go func() {
			defer l.wg.Done()
			l.Load(ctx)
		}()
	})

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		unsubscribe()
		return l.State()
	}
	l.unsubscribe = unsubscribe
	l.mu.Unlock()

	return l.Load(ctx)
}

// Dispose cancels any run in flight, stops listening for identity changes
// and freezes the state. It waits for background reloads to return.
func (l *Loader) Dispose() {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.disposed = true
	if l.cancel != nil {
		l.cancel()
	}
	unsubscribe := l.unsubscribe
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	l.wg.Wait()
}

func (l *Loader) begin(ctx context.Context) (context.Context, uint64, bool) {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return nil, 0, false
	}
	if l.cancel != nil {
		l.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.gen++
	gen := l.gen
	l.state.Loading = true
	state := l.state
	l.mu.Unlock()

	l.publish(state)
	return runCtx, gen, true
}

func (l *Loader) finish(gen uint64, next State) {
	l.mu.Lock()
	if l.disposed || gen != l.gen {
		l.mu.Unlock()
		metrics.HistoryLoadsTotal.WithLabelValues("discarded").Inc()
		l.log.Debug("discarding superseded history run", zap.Uint64("run", gen))
		return
	}
	l.state = next
	l.cancel()
	l.cancel = nil
	l.mu.Unlock()

	l.publish(next)
}

func (l *Loader) publish(s State) {
	if l.onChange != nil {
		l.onChange(s)
	}
}

func (l *Loader) run(ctx context.Context) State {
	next := emptyState()

	id, ok := l.ids.Current()
	if !ok {
		metrics.HistoryLoadsTotal.WithLabelValues("unauthenticated").Inc()
		next.Error = UnauthenticatedMessage
		return next
	}

	raw, exists, err := l.records.FetchRecords(ctx, id.UserID)
	if err != nil {
		metrics.HistoryLoadsTotal.WithLabelValues("error").Inc()
		l.log.Warn("fetch records failed", zap.String("user_id", id.UserID), zap.Error(err))
		next.Error = err.Error()
		return next
	}
	if !exists {
		metrics.HistoryLoadsTotal.WithLabelValues("empty").Inc()
		if l.policy == EmptyIsError {
			next.Error = NoDataMessage
		}
		return next
	}

	res := normalize.Records(raw, normalize.Options{
		Fallback: l.fallback,
		Location: l.agg.Location(),
	})
	for _, d := range res.Dropped {
		l.log.Debug("dropped malformed record", zap.String("user_id", id.UserID), zap.String("key", d.Key), zap.String("reason", d.Reason))
	}
	metrics.RecordsDropped.Add(float64(len(res.Dropped)))

	next.History = l.agg.Daily(res.Records)

	// newest first, as the history list shows them
	sort.SliceStable(res.Records, func(i, j int) bool {
		return res.Records[i].Date.After(res.Records[j].Date)
	})
	next.Records = res.Records

	metrics.HistoryLoadsTotal.WithLabelValues("ok").Inc()
	return next
}

// Lookup resolves a date or timestamp to that day's records in the current
// history.
func (l *Loader) Lookup(date string) ([]models.RecordDetail, bool) {
	return aggregate.Lookup(l.State().History, date)
}

// MarkedDates lists the days in the current history, ascending.
func (l *Loader) MarkedDates() []string {
	h := l.State().History
	out := make([]string, 0, len(h))
	for _, d := range h {
		out = append(out, d.Date)
	}
	return out
}
