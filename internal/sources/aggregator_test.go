package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ideascope/ideascope/internal/models"
	"github.com/ideascope/ideascope/internal/storage"
)

// fakeBackend implements Invoker with per-function canned responses and
// an optional gate that holds every call until released.
type fakeBackend struct {
	mu        sync.Mutex
	calls     int
	functions []string
	gate      chan struct{}
	respond   func(function string) (json.RawMessage, error)
}

func (f *fakeBackend) Invoke(ctx context.Context, function string, payload any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.functions = append(f.functions, function)
	gate := f.gate
	respond := f.respond
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if respond != nil {
		return respond(function)
	}
	return json.RawMessage(`{"coverage": 0.9}`), nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeReporter records notifications.
type fakeReporter struct {
	mu         sync.Mutex
	reports    int
	outages    int
	recoveries int
}

func (f *fakeReporter) SendReport(idea string, card models.Scorecard, okCount, degradedCount, unavailableCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports++
	return nil
}

func (f *fakeReporter) SendBackendOutage(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outages++
	return nil
}

func (f *fakeReporter) SendRecovery(failures int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recoveries++
	return nil
}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitForCompletion(t *testing.T, a *Aggregator, sessionID string) map[models.Source]models.SourceResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		results, err := a.Results(sessionID)
		if err != nil {
			t.Fatalf("Results: %v", err)
		}
		done := true
		for _, res := range results {
			if !res.Status.Terminal() {
				done = false
				break
			}
		}
		if done {
			return results
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("validation did not complete in time")
	return nil
}

func TestStartEmptyIdea(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, newTestStorage(t), nil, DefaultConfig())

	for _, idea := range []string{"", "   ", "\t\n"} {
		if _, err := a.Start(context.Background(), idea, nil); !errors.Is(err, models.ErrEmptyIdea) {
			t.Errorf("Start(%q) error = %v, want ErrEmptyIdea", idea, err)
		}
	}
	if backend.callCount() != 0 {
		t.Errorf("backend called %d times for invalid ideas, want 0", backend.callCount())
	}
}

func TestCompletenessWhenAllSourcesFail(t *testing.T) {
	backend := &fakeBackend{
		respond: func(function string) (json.RawMessage, error) {
			return nil, fmt.Errorf("backend function %q failed: connection refused", function)
		},
	}
	a := New(backend, newTestStorage(t), nil, DefaultConfig())

	session, err := a.Start(context.Background(), "subscription lawn care", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	results := waitForCompletion(t, a, session.ID)

	if len(results) != len(models.AllSources()) {
		t.Fatalf("got %d results, want %d", len(results), len(models.AllSources()))
	}
	for source, res := range results {
		if res.Status != models.StatusUnavailable {
			t.Errorf("source %s status = %q, want unavailable", source, res.Status)
		}
		if res.Error == "" {
			t.Errorf("source %s carries no error message", source)
		}
	}

	// The composite still computes from neutral defaults.
	card, err := a.Scorecard(session.ID)
	if err != nil {
		t.Fatalf("Scorecard: %v", err)
	}
	if card.Composite < 0 || card.Composite > 100 {
		t.Errorf("composite = %d, want within [0,100]", card.Composite)
	}
	if card.Composite != 50 {
		t.Errorf("all-neutral composite = %d, want 50", card.Composite)
	}
	if len(card.Neutral) != len(models.AllFactors()) {
		t.Errorf("neutral factors = %v, want all five", card.Neutral)
	}
}

func TestProgressiveStatusEvents(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{gate: gate}
	a := New(backend, newTestStorage(t), nil, DefaultConfig())

	session, err := a.Start(context.Background(), "ai onboarding concierge", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	events, unsubscribe, err := a.Subscribe(session.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	close(gate)

	var terminal int
	var completed bool
	timeout := time.After(5 * time.Second)
	for !completed {
		select {
		case ev := <-events:
			if ev.Completed {
				completed = true
			} else if ev.Status.Terminal() {
				terminal++
			}
		case <-timeout:
			t.Fatal("timed out waiting for status events")
		}
	}
	if terminal != len(models.AllSources()) {
		t.Errorf("observed %d terminal transitions, want %d", terminal, len(models.AllSources()))
	}
}

func TestRefreshSingleSource(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, newTestStorage(t), nil, DefaultConfig())

	session, err := a.Start(context.Background(), "fleet charging scheduler", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	before := waitForCompletion(t, a, session.ID)

	if err := a.Refresh(context.Background(), session.ID, models.SourceReddit); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	after := waitForCompletion(t, a, session.ID)

	for _, source := range models.AllSources() {
		if source == models.SourceReddit {
			if !after[source].FetchedAt.After(before[source].FetchedAt) {
				t.Error("reddit result was not refetched")
			}
			continue
		}
		if !reflect.DeepEqual(before[source], after[source]) {
			t.Errorf("source %s changed during reddit refresh", source)
		}
	}
}

func TestRefreshErrors(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{gate: gate}
	a := New(backend, newTestStorage(t), nil, DefaultConfig())

	session, err := a.Start(context.Background(), "niche job board", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := a.Refresh(context.Background(), session.ID, models.Source("myspace")); !errors.Is(err, models.ErrUnknownSource) {
		t.Errorf("Refresh(unknown source) error = %v, want ErrUnknownSource", err)
	}
	if err := a.Refresh(context.Background(), "no-such-session", models.SourceReddit); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Refresh(unknown session) error = %v, want ErrSessionNotFound", err)
	}
	// Initial fetches are still gated: a second query for the same
	// source must be refused.
	if err := a.Refresh(context.Background(), session.ID, models.SourceReddit); !errors.Is(err, ErrFetchInProgress) {
		t.Errorf("Refresh(in-flight source) error = %v, want ErrFetchInProgress", err)
	}

	close(gate)
	waitForCompletion(t, a, session.ID)
}

func TestStaleResultsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{gate: gate}
	store := newTestStorage(t)
	a := New(backend, store, nil, DefaultConfig())

	first, err := a.Start(context.Background(), "idea A", nil)
	if err != nil {
		t.Fatalf("Start first: %v", err)
	}
	second, err := a.Start(context.Background(), "idea B", nil)
	if err != nil {
		t.Fatalf("Start second: %v", err)
	}

	close(gate)
	results := waitForCompletion(t, a, second.ID)
	if len(results) != len(models.AllSources()) {
		t.Fatalf("second validation has %d results, want %d", len(results), len(models.AllSources()))
	}

	// The superseded run's fetches are demoted to unavailable; their
	// late results are discarded, never committed.
	firstResults, err := a.Results(first.ID)
	if err != nil {
		t.Fatalf("Results(first): %v", err)
	}
	for source, res := range firstResults {
		if res.Status != models.StatusUnavailable {
			t.Errorf("superseded run's %s result = %q, want unavailable", source, res.Status)
		}
		if res.Error != "superseded by a newer validation" {
			t.Errorf("superseded run's %s error = %q", source, res.Error)
		}
	}

	// The latest pointers name the superseding validation.
	deadline := time.Now().Add(2 * time.Second)
	for {
		latest, err := store.GetKV("last_session_id")
		if err == nil && latest == second.ID {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("last_session_id = %q, want %q", latest, second.ID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSupersededSessionRefreshable(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{gate: gate}
	store := newTestStorage(t)
	a := New(backend, store, nil, DefaultConfig())

	first, err := a.Start(context.Background(), "idea A", nil)
	if err != nil {
		t.Fatalf("Start first: %v", err)
	}
	second, err := a.Start(context.Background(), "idea B", nil)
	if err != nil {
		t.Fatalf("Start second: %v", err)
	}

	close(gate)
	waitForCompletion(t, a, second.ID)

	// Superseding terminates the old run's fetches, so any of its
	// sources can be refreshed afterwards.
	if err := a.Refresh(context.Background(), first.ID, models.SourceReddit); err != nil {
		t.Fatalf("Refresh on superseded session: %v", err)
	}
	results := waitForCompletion(t, a, first.ID)
	if got := results[models.SourceReddit].Status; got != models.StatusOK {
		t.Errorf("refreshed reddit status = %q, want ok", got)
	}
	for source, res := range results {
		if source == models.SourceReddit {
			continue
		}
		if res.Status != models.StatusUnavailable {
			t.Errorf("%s status = %q, want unavailable after supersede", source, res.Status)
		}
	}

	// Completing a refresh on a superseded session must not steal the
	// latest pointer from the current one.
	latest, err := store.GetKV("last_session_id")
	if err != nil {
		t.Fatalf("GetKV(last_session_id): %v", err)
	}
	if latest != second.ID {
		t.Errorf("last_session_id = %q, want %q", latest, second.ID)
	}
}

// blockingReporter holds SendReport until released so tests can observe
// aggregator behavior while a notification is in flight.
type blockingReporter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	reports int
}

func (b *blockingReporter) SendReport(idea string, card models.Scorecard, okCount, degradedCount, unavailableCount int) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reports++
	return nil
}

func (b *blockingReporter) SendBackendOutage(err error) error { return nil }

func (b *blockingReporter) SendRecovery(failures int) error { return nil }

func TestReportSendDoesNotBlockReads(t *testing.T) {
	reporter := &blockingReporter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	defer close(reporter.release)
	backend := &fakeBackend{}
	a := New(backend, newTestStorage(t), reporter, DefaultConfig())

	session, err := a.Start(context.Background(), "solar camping gear rental", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-reporter.started:
	case <-time.After(5 * time.Second):
		t.Fatal("report send never started")
	}

	// With the send still in flight, aggregator state stays readable.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := a.Results(session.ID); err != nil {
			t.Errorf("Results: %v", err)
		}
		if _, err := a.Scorecard(session.ID); err != nil {
			t.Errorf("Scorecard: %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("state reads blocked behind the notification send")
	}
}

func TestSetRefinement(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, newTestStorage(t), nil, DefaultConfig())

	session, err := a.Start(context.Background(), "premium dog treats", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForCompletion(t, a, session.ID)

	refinement := models.Refinement{
		Premium:        true,
		ChannelWeights: map[string]float64{"search": 3, "video": 1},
	}
	card, err := a.SetRefinement(session.ID, refinement)
	if err != nil {
		t.Fatalf("SetRefinement: %v", err)
	}
	if card.Composite < 0 || card.Composite > 100 {
		t.Errorf("composite = %d, want within [0,100]", card.Composite)
	}

	got, err := a.Session(session.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	var sum float64
	for _, w := range got.Refinement.ChannelWeights {
		sum += w
	}
	if sum < 1-1e-6 || sum > 1+1e-6 {
		t.Errorf("channel weights sum = %f, want 1.0 after renormalization", sum)
	}
	if got.Refinement.ChannelWeights["search"] != 0.75 {
		t.Errorf("search weight = %f, want 0.75", got.Refinement.ChannelWeights["search"])
	}

	bad := models.Refinement{AgeMin: 40, AgeMax: 20}
	if _, err := a.SetRefinement(session.ID, bad); err == nil {
		t.Error("expected validation error for inverted age range")
	}
}

func TestOutageAndRecoveryNotifications(t *testing.T) {
	var down bool
	backend := &fakeBackend{
		respond: func(function string) (json.RawMessage, error) {
			if down {
				return nil, errors.New("connection refused")
			}
			return json.RawMessage(`{"coverage": 0.9}`), nil
		},
	}
	reporter := &fakeReporter{}
	a := New(backend, newTestStorage(t), reporter, DefaultConfig())

	down = true
	session, err := a.Start(context.Background(), "idea during outage", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForCompletion(t, a, session.ID)

	down = false
	session, err = a.Start(context.Background(), "idea after recovery", nil)
	if err != nil {
		t.Fatalf("Start second: %v", err)
	}
	waitForCompletion(t, a, session.ID)

	// Reports fire from finalize; give the notifier goroutine-free path
	// a moment to settle via polling.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		reporter.mu.Lock()
		done := reporter.reports >= 2
		reporter.mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	if reporter.outages != 1 {
		t.Errorf("outage notifications = %d, want 1", reporter.outages)
	}
	if reporter.recoveries != 1 {
		t.Errorf("recovery notifications = %d, want 1", reporter.recoveries)
	}
	if reporter.reports != 2 {
		t.Errorf("report notifications = %d, want 2", reporter.reports)
	}
}

func TestRehydrateAfterRestart(t *testing.T) {
	store := newTestStorage(t)
	backend := &fakeBackend{}
	a := New(backend, store, nil, DefaultConfig())

	session, err := a.Start(context.Background(), "restartable idea", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForCompletion(t, a, session.ID)
	card, err := a.Scorecard(session.ID)
	if err != nil {
		t.Fatalf("Scorecard: %v", err)
	}

	// A fresh aggregator over the same storage sees the session again.
	b := New(&fakeBackend{}, store, nil, DefaultConfig())
	results, err := b.Results(session.ID)
	if err != nil {
		t.Fatalf("Results after restart: %v", err)
	}
	if len(results) != len(models.AllSources()) {
		t.Errorf("got %d results after restart, want %d", len(results), len(models.AllSources()))
	}
	card2, err := b.Scorecard(session.ID)
	if err != nil {
		t.Fatalf("Scorecard after restart: %v", err)
	}
	if card2.Composite != card.Composite {
		t.Errorf("composite after restart = %d, want %d", card2.Composite, card.Composite)
	}
}

func TestFunctionFor(t *testing.T) {
	for _, source := range models.AllSources() {
		fn, err := FunctionFor(source)
		if err != nil {
			t.Errorf("FunctionFor(%s) error = %v", source, err)
		}
		if fn == "" {
			t.Errorf("FunctionFor(%s) returned empty function", source)
		}
	}
	if _, err := FunctionFor(models.Source("myspace")); !errors.Is(err, models.ErrUnknownSource) {
		t.Errorf("FunctionFor(unknown) error = %v, want ErrUnknownSource", err)
	}
}

func TestDegradedDetection(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.SourceStatus
	}{
		{name: "full coverage", body: `{"coverage": 0.9}`, want: models.StatusOK},
		{name: "no coverage reported", body: `{}`, want: models.StatusOK},
		{name: "partial flag", body: `{"partial": true, "coverage": 0.9}`, want: models.StatusDegraded},
		{name: "low coverage", body: `{"coverage": 0.2}`, want: models.StatusDegraded},
		{name: "unusable payload", body: `not json at all`, want: models.StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{
				respond: func(function string) (json.RawMessage, error) {
					return json.RawMessage(tt.body), nil
				},
			}
			a := New(backend, newTestStorage(t), nil, DefaultConfig())

			session, err := a.Start(context.Background(), "niche coffee subscriptions", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			results := waitForCompletion(t, a, session.ID)
			for source, res := range results {
				if res.Status != tt.want {
					t.Errorf("source %s status = %q, want %q", source, res.Status, tt.want)
				}
			}
		})
	}
}
