package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ideascope/ideascope/internal/logger"
	"github.com/ideascope/ideascope/internal/models"
	"github.com/ideascope/ideascope/internal/scoring"
	"github.com/ideascope/ideascope/internal/storage"
)

// ErrSessionNotFound is returned for operations against an unknown
// validation session.
var ErrSessionNotFound = errors.New("session not found")

// ErrFetchInProgress is returned when a refresh is requested for a
// source that is already fetching. One query per source at a time keeps
// a single writer per result key.
var ErrFetchInProgress = errors.New("fetch already in progress for source")

// Invoker is the slice of the backend client the aggregator needs.
type Invoker interface {
	Invoke(ctx context.Context, function string, payload any) (json.RawMessage, error)
}

// Reporter receives validation outcomes. Implementations must tolerate
// being called from fetch completion goroutines.
type Reporter interface {
	SendReport(idea string, card models.Scorecard, okCount, degradedCount, unavailableCount int) error
	SendBackendOutage(err error) error
	SendRecovery(failures int) error
}

// Config holds aggregator tuning.
type Config struct {
	Sources          []models.Source
	SubscriberBuffer int
}

// DefaultConfig queries every canonical source.
func DefaultConfig() Config {
	return Config{
		Sources:          models.AllSources(),
		SubscriberBuffer: 16,
	}
}

// run is the live state of one validation session. The aggregator's
// mutex guards every field; each source's result is only ever written
// by the completion of the single query in flight for it.
type run struct {
	session    models.Session
	refinement models.Refinement
	results    map[models.Source]models.SourceResult
	inflight   map[models.Source]bool
	generation map[models.Source]int
	scorecard  models.Scorecard
	reported   bool
	subs       map[int]chan models.StatusEvent
	nextSubID  int
}

func (r *run) completed() bool {
	for _, res := range r.results {
		if !res.Status.Terminal() {
			return false
		}
	}
	return true
}

// Aggregator fans validation work out across the configured sources and
// owns all live per-source status.
type Aggregator struct {
	backend  Invoker
	store    *storage.Storage
	reporter Reporter
	config   Config

	mu                 sync.Mutex
	runs               map[string]*run
	currentID          string
	consecutiveOutages int
}

// New creates an aggregator and rehydrates persisted sessions so past
// reports stay readable across restarts. Fetches interrupted by a
// restart are demoted to unavailable; a refresh brings them back.
func New(backend Invoker, store *storage.Storage, reporter Reporter, config Config) *Aggregator {
	a := &Aggregator{
		backend:  backend,
		store:    store,
		reporter: reporter,
		config:   config,
		runs:     make(map[string]*run),
	}

	sessions, err := store.ListSessions()
	if err != nil {
		logger.Warn("Failed to load persisted sessions: %v", err)
		return a
	}
	for i, session := range sessions {
		r, err := a.rehydrate(session)
		if err != nil {
			logger.Warn("Failed to rehydrate session %s: %v", session.ID, err)
			continue
		}
		a.runs[session.ID] = r
		if i == 0 {
			a.currentID = session.ID
		}
	}
	if len(sessions) > 0 {
		logger.Info("Loaded %d persisted validation sessions", len(sessions))
	}
	return a
}

func (a *Aggregator) rehydrate(session *models.Session) (*run, error) {
	results, err := a.store.GetResults(session.ID)
	if err != nil {
		return nil, err
	}
	for source, res := range results {
		if !res.Status.Terminal() {
			res.Status = models.StatusUnavailable
			res.Error = "fetch interrupted by service restart"
			results[source] = res
			if err := a.store.SaveResult(session.ID, &res); err != nil {
				logger.Warn("Failed to demote interrupted fetch for %s/%s: %v", session.ID, source, err)
			}
		}
	}
	r := &run{
		session:    *session,
		refinement: session.Refinement,
		results:    results,
		inflight:   make(map[models.Source]bool),
		generation: make(map[models.Source]int),
		subs:       make(map[int]chan models.StatusEvent),
	}
	r.scorecard = scoring.Compute(scoring.MergeSubScores(r.results), r.refinement)
	return r, nil
}

// Start validates the idea, creates a session, and launches one
// concurrent fetch per configured source. It returns as soon as the
// fetches are in flight; progress is observable through Subscribe and
// Results. Any run previously current is superseded: its unfinished
// fetches are demoted to unavailable and their late results discarded
// rather than awaited.
func (a *Aggregator) Start(ctx context.Context, idea string, assumptions map[string]string) (models.Session, error) {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return models.Session{}, models.ErrEmptyIdea
	}

	now := time.Now()
	session := models.Session{
		ID:          uuid.New().String(),
		Idea:        idea,
		Assumptions: assumptions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.CreateSession(&session); err != nil {
		return models.Session{}, fmt.Errorf("failed to create session: %w", err)
	}

	r := &run{
		session:    session,
		results:    make(map[models.Source]models.SourceResult, len(a.config.Sources)),
		inflight:   make(map[models.Source]bool, len(a.config.Sources)),
		generation: make(map[models.Source]int, len(a.config.Sources)),
		subs:       make(map[int]chan models.StatusEvent),
	}
	for _, source := range a.config.Sources {
		r.results[source] = models.SourceResult{Source: source, Status: models.StatusFetching, FetchedAt: now}
		r.inflight[source] = true
		r.generation[source] = 1
	}

	a.mu.Lock()
	if prev, ok := a.runs[a.currentID]; ok && !prev.completed() {
		logger.Info("Superseding in-flight validation %s with %s", a.currentID, session.ID)
		a.supersede(prev)
	}
	a.runs[session.ID] = r
	a.currentID = session.ID
	a.pruneEvicted()
	for _, source := range a.config.Sources {
		res := r.results[source]
		if err := a.store.SaveResult(session.ID, &res); err != nil {
			logger.Warn("Failed to persist initial result for %s/%s: %v", session.ID, source, err)
		}
	}
	a.mu.Unlock()

	// Fetches outlive the request that started them.
	fetchCtx := context.WithoutCancel(ctx)
	go func() {
		g, gctx := errgroup.WithContext(fetchCtx)
		for _, source := range a.config.Sources {
			source := source
			g.Go(func() error {
				a.fetch(gctx, session.ID, source, 1)
				return nil // per-source failures are committed, never propagated
			})
		}
		_ = g.Wait()
	}()

	logger.Info("Started validation %s across %d sources", session.ID, len(a.config.Sources))
	return session, nil
}

// supersede demotes a run's unfinished fetches to unavailable and
// invalidates their generations so late results are discarded, the
// same terminal state an interrupted fetch lands in after a restart.
// The session stays readable and any source can still be refreshed.
// Called with the aggregator lock held.
func (a *Aggregator) supersede(r *run) {
	now := time.Now()
	for source, res := range r.results {
		if res.Status.Terminal() {
			continue
		}
		r.generation[source]++
		delete(r.inflight, source)
		res.Status = models.StatusUnavailable
		res.Error = "superseded by a newer validation"
		res.FetchedAt = now
		r.results[source] = res
		if err := a.store.SaveResult(r.session.ID, &res); err != nil {
			logger.Warn("Failed to persist superseded result for %s/%s: %v", r.session.ID, source, err)
		}
		a.emit(r, models.StatusEvent{
			SessionID: r.session.ID,
			Source:    source,
			Status:    res.Status,
			Composite: r.scorecard.Composite,
			At:        now,
		})
	}
}

// Refresh re-fetches exactly one source for a session, leaving every
// other source's result untouched.
func (a *Aggregator) Refresh(ctx context.Context, sessionID string, source models.Source) error {
	if _, err := FunctionFor(source); err != nil {
		return err
	}

	a.mu.Lock()
	r, ok := a.runs[sessionID]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if _, configured := r.results[source]; !configured {
		a.mu.Unlock()
		return fmt.Errorf("%w: %q not part of this validation", models.ErrUnknownSource, source)
	}
	if r.inflight[source] {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFetchInProgress, source)
	}

	r.generation[source]++
	gen := r.generation[source]
	r.inflight[source] = true
	r.results[source] = models.SourceResult{Source: source, Status: models.StatusFetching, FetchedAt: time.Now()}
	a.emit(r, models.StatusEvent{
		SessionID: sessionID,
		Source:    source,
		Status:    models.StatusFetching,
		Composite: r.scorecard.Composite,
		At:        time.Now(),
	})
	a.mu.Unlock()

	logger.Info("Refreshing source %s for validation %s", source, sessionID)
	go a.fetch(context.WithoutCancel(ctx), sessionID, source, gen)
	return nil
}

// fetch runs one source query to a terminal result and commits it.
// Every failure mode lands as an unavailable or degraded result; fetch
// itself never errors out.
func (a *Aggregator) fetch(ctx context.Context, sessionID string, source models.Source, gen int) {
	result := a.query(ctx, sessionID, source)
	a.commit(sessionID, source, gen, result)
}

func (a *Aggregator) query(ctx context.Context, sessionID string, source models.Source) models.SourceResult {
	now := time.Now()
	result := models.SourceResult{Source: source, FetchedAt: now}

	fn, err := FunctionFor(source)
	if err != nil {
		result.Status = models.StatusUnavailable
		result.Error = err.Error()
		return result
	}

	a.mu.Lock()
	r, ok := a.runs[sessionID]
	var payload invokePayload
	if ok {
		payload = invokePayload{Idea: r.session.Idea, Assumptions: r.session.Assumptions}
	}
	a.mu.Unlock()
	if !ok {
		result.Status = models.StatusUnavailable
		result.Error = "session evicted before fetch"
		return result
	}

	data, err := a.backend.Invoke(ctx, fn, payload)
	if err != nil {
		logger.Warn("Source %s unavailable for validation %s: %v", source, sessionID, err)
		result.Status = models.StatusUnavailable
		result.Error = err.Error()
		return result
	}
	result.Raw = data
	result.FetchedAt = time.Now()

	var env resultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		result.Status = models.StatusDegraded
		result.Error = fmt.Sprintf("failed to decode result envelope: %v", err)
		return result
	}
	result.Citations = normalizeCitations(source, env.Citations, result.FetchedAt)

	metrics, err := scoring.Normalize(source, data)
	if err != nil {
		// The source answered but its data is unusable: degraded with
		// no metric contribution rather than unavailable.
		logger.Warn("Source %s returned unusable data for validation %s: %v", source, sessionID, err)
		result.Status = models.StatusDegraded
		result.Error = err.Error()
		return result
	}
	result.Metrics = metrics

	if env.Partial || (env.Coverage != nil && *env.Coverage < degradedCoverage) {
		result.Status = models.StatusDegraded
	} else {
		result.Status = models.StatusOK
	}
	return result
}

// commit installs one terminal result, recomputes the scorecard, and
// finalizes the run when every source has landed. Commits carrying a
// stale generation are discarded; superseding a run bumps the
// generation of every fetch it cuts short.
func (a *Aggregator) commit(sessionID string, source models.Source, gen int, result models.SourceResult) {
	a.mu.Lock()

	r, ok := a.runs[sessionID]
	if !ok {
		a.mu.Unlock()
		logger.Debug("Discarding result for evicted session %s", sessionID)
		return
	}
	if r.generation[source] != gen {
		a.mu.Unlock()
		logger.Debug("Discarding stale %s result for validation %s (gen %d, current %d)",
			source, sessionID, gen, r.generation[source])
		return
	}

	r.results[source] = result
	delete(r.inflight, source)
	r.scorecard = scoring.Compute(scoring.MergeSubScores(r.results), r.refinement)

	if err := a.store.SaveResult(sessionID, &result); err != nil {
		logger.Warn("Failed to persist result for %s/%s: %v", sessionID, source, err)
	}
	if err := a.store.SaveScorecard(sessionID, &r.scorecard); err != nil {
		logger.Warn("Failed to persist scorecard for %s: %v", sessionID, err)
	}

	a.emit(r, models.StatusEvent{
		SessionID: sessionID,
		Source:    source,
		Status:    result.Status,
		Composite: r.scorecard.Composite,
		At:        time.Now(),
	})

	var notify func()
	if r.completed() {
		notify = a.finalize(r)
	}
	a.mu.Unlock()

	// Telegram sends block for seconds on retry; they must never run
	// under the aggregator lock.
	if notify != nil {
		notify()
	}
}

// finalize runs once all sources are terminal: it records the
// validation as the latest one and tracks backend outages. It returns
// the notification send to run after the lock is released, or nil.
// Called with the aggregator lock held.
func (a *Aggregator) finalize(r *run) func() {
	sessionID := r.session.ID
	if err := a.store.TouchSession(sessionID, time.Now()); err != nil {
		logger.Warn("Failed to touch session %s: %v", sessionID, err)
	}
	if err := a.store.RotateSessions(); err != nil {
		logger.Warn("Failed to rotate sessions: %v", err)
	}

	var okCount, degradedCount, unavailableCount int
	for _, res := range r.results {
		switch res.Status {
		case models.StatusOK:
			okCount++
		case models.StatusDegraded:
			degradedCount++
		case models.StatusUnavailable:
			unavailableCount++
		}
	}
	logger.Info("Validation %s complete: composite=%d (ok=%d degraded=%d unavailable=%d)",
		sessionID, r.scorecard.Composite, okCount, degradedCount, unavailableCount)

	a.emit(r, models.StatusEvent{
		SessionID: sessionID,
		Composite: r.scorecard.Composite,
		Completed: true,
		At:        time.Now(),
	})

	// A superseded session finishing a refresh completes quietly: it
	// neither becomes the latest validation nor re-notifies.
	if sessionID != a.currentID {
		return nil
	}
	a.saveLatest(r)

	if r.reported {
		return nil
	}
	r.reported = true

	allDown := unavailableCount == len(r.results) && len(r.results) > 0
	var sendOutage bool
	var recoveredAfter int
	if allDown {
		a.consecutiveOutages++
		sendOutage = a.consecutiveOutages == 1
	} else {
		recoveredAfter = a.consecutiveOutages
		a.consecutiveOutages = 0
	}

	if a.reporter == nil {
		return nil
	}
	reporter := a.reporter
	idea, card := r.session.Idea, r.scorecard
	return func() {
		if sendOutage {
			if err := reporter.SendBackendOutage(errors.New("every source call failed")); err != nil {
				logger.Warn("Failed to send outage notification: %v", err)
			}
		} else if recoveredAfter > 0 {
			if err := reporter.SendRecovery(recoveredAfter); err != nil {
				logger.Warn("Failed to send recovery notification: %v", err)
			}
		}
		if err := reporter.SendReport(idea, card, okCount, degradedCount, unavailableCount); err != nil {
			logger.Warn("Failed to send report notification: %v", err)
		}
	}
}

// pruneEvicted drops live runs whose sessions the storage cap has
// evicted, so memory tracks the same session set as the database.
// Called with the aggregator lock held.
func (a *Aggregator) pruneEvicted() {
	sessions, err := a.store.ListSessions()
	if err != nil {
		logger.Warn("Failed to list sessions for pruning: %v", err)
		return
	}
	keep := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		keep[s.ID] = true
	}
	for id, r := range a.runs {
		if keep[id] || id == a.currentID {
			continue
		}
		for subID, ch := range r.subs {
			delete(r.subs, subID)
			close(ch)
		}
		delete(a.runs, id)
		logger.Debug("Pruned evicted session %s from live runs", id)
	}
}

// saveLatest writes the last-validation pointers the dashboard reads
// after navigation. Plain last-write-wins keys.
func (a *Aggregator) saveLatest(r *run) {
	if err := a.store.SetKV("last_idea", r.session.Idea); err != nil {
		logger.Warn("Failed to save last idea: %v", err)
	}
	if err := a.store.SetKV("last_session_id", r.session.ID); err != nil {
		logger.Warn("Failed to save last session ID: %v", err)
	}
	if card, err := json.Marshal(r.scorecard); err == nil {
		if err := a.store.SetKV("last_scorecard", string(card)); err != nil {
			logger.Warn("Failed to save last scorecard: %v", err)
		}
	}
}

// Results returns a snapshot of every source's current result for a
// session, one entry per configured source.
func (a *Aggregator) Results(sessionID string) (map[models.Source]models.SourceResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.runs[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	snapshot := make(map[models.Source]models.SourceResult, len(r.results))
	for source, res := range r.results {
		snapshot[source] = res
	}
	return snapshot, nil
}

// Session returns a session's descriptive fields.
func (a *Aggregator) Session(sessionID string) (models.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.runs[sessionID]
	if !ok {
		return models.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	session := r.session
	session.Refinement = r.refinement
	return session, nil
}

// Scorecard returns the session's current composite scorecard.
func (a *Aggregator) Scorecard(sessionID string) (models.Scorecard, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.runs[sessionID]
	if !ok {
		return models.Scorecard{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return r.scorecard, nil
}

// SetRefinement installs new refinement parameters and recomputes the
// scorecard against the existing evidence. Channel weights are
// renormalized to sum to 1.0 before use.
func (a *Aggregator) SetRefinement(sessionID string, refinement models.Refinement) (models.Scorecard, error) {
	if err := refinement.Validate(); err != nil {
		return models.Scorecard{}, err
	}
	refinement.NormalizeChannels()

	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.runs[sessionID]
	if !ok {
		return models.Scorecard{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	r.refinement = refinement
	r.session.Refinement = refinement
	r.scorecard = scoring.Compute(scoring.MergeSubScores(r.results), r.refinement)

	if err := a.store.SaveRefinement(sessionID, refinement); err != nil {
		logger.Warn("Failed to persist refinement for %s: %v", sessionID, err)
	}
	if err := a.store.SaveScorecard(sessionID, &r.scorecard); err != nil {
		logger.Warn("Failed to persist scorecard for %s: %v", sessionID, err)
	}
	return r.scorecard, nil
}

// Subscribe returns a channel of status events for one session plus an
// unsubscribe function. Slow subscribers drop events rather than block
// commits.
func (a *Aggregator) Subscribe(sessionID string) (<-chan models.StatusEvent, func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.runs[sessionID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	buffer := a.config.SubscriberBuffer
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan models.StatusEvent, buffer)
	id := r.nextSubID
	r.nextSubID++
	r.subs[id] = ch

	unsubscribe := func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}

// emit delivers an event to every subscriber of a run. Called with the
// aggregator lock held.
func (a *Aggregator) emit(r *run, event models.StatusEvent) {
	for id, ch := range r.subs {
		select {
		case ch <- event:
		default:
			logger.Debug("Dropping status event for slow subscriber %d on session %s", id, event.SessionID)
		}
	}
}

// normalizeCitations fills in the fields a backend citation may omit.
func normalizeCitations(source models.Source, citations []models.Citation, fetchedAt time.Time) []models.Citation {
	out := make([]models.Citation, 0, len(citations))
	for _, c := range citations {
		if c.URL == "" {
			continue
		}
		if c.Source == "" {
			c.Source = source
		}
		if c.FetchedAtISO == "" {
			c.FetchedAtISO = fetchedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
