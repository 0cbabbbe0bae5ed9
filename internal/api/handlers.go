package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lox/recoverytrack/internal/aggregate"
	"github.com/lox/recoverytrack/internal/chart"
	"github.com/lox/recoverytrack/internal/history"
	"github.com/lox/recoverytrack/internal/htmlutil"
	"github.com/lox/recoverytrack/internal/identity"
	"github.com/lox/recoverytrack/internal/ingest"
	"github.com/lox/recoverytrack/internal/insight"
	"github.com/lox/recoverytrack/internal/models"
	"github.com/lox/recoverytrack/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.MigrationVersion(r.Context())
	if err == nil {
		err = s.store.Ping(r.Context())
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "schemaVersion": version})
}

// load runs the history pipeline once for id. statName falls back to the
// server's default statistic when empty.
func (s *Server) load(ctx context.Context, id identity.Identity, statName string) (*history.Loader, history.State, error) {
	if statName == "" {
		statName = s.statistic
	}
	stat, err := aggregate.ByName(statName)
	if err != nil {
		return nil, history.State{}, err
	}
	agg := aggregate.New(stat, s.loc,
		aggregate.WithWindowDays(s.windowDays),
		aggregate.WithClock(s.now),
	)
	l := history.New(identity.NewStatic(id), s.store, agg, s.log, history.WithPolicy(s.policy), history.WithFallback(s.fallback))
	state := l.Load(ctx)
	l.Dispose()
	return l, state, nil
}

// loadOrFail loads history and writes the failure response itself when
// the pipeline could not produce one.
func (s *Server) loadOrFail(w http.ResponseWriter, r *http.Request, id identity.Identity) (*history.Loader, history.State, bool) {
	l, state, err := s.load(r.Context(), id, r.URL.Query().Get("stat"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, state, false
	}
	if state.Error != "" {
		writeJSON(w, stateStatus(state), state)
		return nil, state, false
	}
	return l, state, true
}

func stateStatus(state history.State) int {
	switch state.Error {
	case "":
		return http.StatusOK
	case history.NoDataMessage:
		return http.StatusNotFound
	case history.UnauthenticatedMessage:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	_, state, err := s.load(r.Context(), id, r.URL.Query().Get("stat"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, stateStatus(state), state)
}

type dayResponse struct {
	Date    string                `json:"date,omitempty"`
	Records []models.RecordDetail `json:"records"`
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	l, _, ok := s.loadOrFail(w, r, id)
	if !ok {
		return
	}

	date := r.PathValue("date")
	records, found := l.Lookup(date)
	if !found {
		writeJSON(w, http.StatusNotFound, dayResponse{})
		return
	}
	writeJSON(w, http.StatusOK, dayResponse{Date: aggregate.DateKey(date), Records: records})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	l, _, ok := s.loadOrFail(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"markedDates": l.MarkedDates()})
}

// series builds the chart for the request's vital from either the day
// aggregates (default) or the individual records in time order.
func series(state history.State, vital, source string, loc *time.Location) (chart.Series, error) {
	switch source {
	case "", "aggregate":
		return chart.Build(state.History, vital, loc), nil
	case "records":
		records := append([]models.Record(nil), state.Records...)
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Date.Before(records[j].Date)
		})
		return chart.Build(records, vital, loc), nil
	default:
		return chart.Series{}, errors.New("source must be aggregate or records")
	}
}

func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	_, state, ok := s.loadOrFail(w, r, id)
	if !ok {
		return
	}

	q := r.URL.Query()
	out, err := series(state, q.Get("vital"), q.Get("source"), s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChartPage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, true)
	if !ok {
		return
	}
	_, state, ok := s.loadOrFail(w, r, id)
	if !ok {
		return
	}

	q := r.URL.Query()
	vital := q.Get("vital")
	if !chart.Known(vital) {
		http.Error(w, "unknown vital", http.StatusBadRequest)
		return
	}
	out, err := series(state, vital, q.Get("source"), s.loc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := chart.RenderHTML(w, out, chart.Title(vital)); err != nil {
		s.log.Warn("render chart failed", zap.Error(err))
	}
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}

	var f ingest.Form
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key, err := s.recorder.Submit(r.Context(), id.UserID, f)
	var ve *ingest.ValidationError
	switch {
	case errors.Is(err, ingest.ErrInvalidTemperature):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Error(), "flags": ve.Flags})
		return
	case err != nil:
		s.internalError(w, "save entry failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	p, err := s.store.GetProfile(r.Context(), id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		s.internalError(w, "load profile failed", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}

	var p models.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.UserID = id.UserID
	p.Name = htmlutil.CleanFreeText(p.Name)
	p.Age = htmlutil.CleanFreeText(p.Age)
	p.Medications = htmlutil.CleanFreeText(p.Medications)
	p.ContactDetails = htmlutil.CleanFreeText(p.ContactDetails)
	p.EmergencyContact = htmlutil.CleanFreeText(p.EmergencyContact)
	p.UpdatedAt = s.now()
	if p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := s.store.SaveProfile(r.Context(), p); err != nil {
		s.internalError(w, "save profile failed", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	if s.insight == nil {
		writeError(w, http.StatusServiceUnavailable, "insights are not configured")
		return
	}
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	_, state, ok := s.loadOrFail(w, r, id)
	if !ok {
		return
	}

	text, err := s.insight.Summarise(r.Context(), state.History)
	if errors.Is(err, insight.ErrNoData) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "generate insight failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": text})
}
