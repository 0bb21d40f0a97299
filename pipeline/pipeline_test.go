package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/platewise/platewise/dedup"
	"github.com/platewise/platewise/gemini"
	"github.com/platewise/platewise/log"
	"github.com/platewise/platewise/telegram"
	"github.com/platewise/platewise/types"
)

// memoryGuard is an in-memory dedup.Guard with the real lifecycle:
// absent -> in_progress -> completed or absent.
type memoryGuard struct {
	mu      sync.Mutex
	state   map[string]string
	cached  map[string]*types.MealSummary
	failOn  string // "claim", "commit", "release"
	commits int
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{state: map[string]string{}, cached: map[string]*types.MealSummary{}}
}

func (g *memoryGuard) Claim(_ context.Context, key string) (dedup.Claim, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOn == "claim" {
		return dedup.Claim{}, errors.New("store unavailable")
	}
	switch g.state[key] {
	case "completed":
		return dedup.Claim{Result: dedup.AlreadyCompleted, Summary: g.cached[key]}, nil
	case "in_progress":
		return dedup.Claim{Result: dedup.AlreadyInProgress}, nil
	}
	g.state[key] = "in_progress"
	return dedup.Claim{Result: dedup.Claimed}, nil
}

func (g *memoryGuard) Commit(_ context.Context, key string, summary *types.MealSummary) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOn == "commit" {
		return errors.New("store unavailable")
	}
	g.state[key] = "completed"
	g.cached[key] = summary
	g.commits++
	return nil
}

func (g *memoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state[key] == "in_progress" {
		delete(g.state, key)
	}
	return nil
}

type fakeFetcher struct {
	image []byte
	err   error
	calls int
}

func (f *fakeFetcher) FetchImage(context.Context, string) ([]byte, error) {
	f.calls++
	return f.image, f.err
}

type fakeIdentifier struct {
	result *gemini.Identification
	err    error
}

func (f *fakeIdentifier) Identify(context.Context, []byte) (*gemini.Identification, error) {
	return f.result, f.err
}

type fakeResolver struct {
	mu      sync.Mutex
	failing map[string]error
	active  int
	peak    int
}

func (f *fakeResolver) Resolve(_ context.Context, item types.FoodItemCandidate) (types.ResolvedNutrition, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	err := f.failing[item.Name]
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()
	if err != nil {
		return types.ResolvedNutrition{}, err
	}
	return types.ResolvedNutrition{
		ItemName: item.Name,
		Grams:    item.Grams,
		Macros:   types.Macros{Calories: item.Grams, Protein: 1},
	}, nil
}

type fakeSink struct {
	mu      sync.Mutex
	err     error
	appends int
}

func (f *fakeSink) Append(context.Context, types.MealJob, []types.ResolvedNutrition, *types.MealSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.appends++
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	messages []string
}

func (f *fakeNotifier) SendMessage(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, text)
	return nil
}

type fakeArchiver struct {
	err   error
	calls int
}

func (f *fakeArchiver) Store(context.Context, string, []byte) error {
	f.calls++
	return f.err
}

type fixture struct {
	guard      *memoryGuard
	fetcher    *fakeFetcher
	identifier *fakeIdentifier
	resolver   *fakeResolver
	sink       *fakeSink
	notifier   *fakeNotifier
	pipeline   *Pipeline
}

func identification(items ...types.FoodItemCandidate) *gemini.Identification {
	return &gemini.Identification{Items: items}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		guard:   newMemoryGuard(),
		fetcher: &fakeFetcher{image: []byte{0xFF, 0xD8, 0xFF}},
		identifier: &fakeIdentifier{result: identification(
			types.FoodItemCandidate{Name: "chicken", Grams: 150},
			types.FoodItemCandidate{Name: "rice", Grams: 200},
		)},
		resolver: &fakeResolver{},
		sink:     &fakeSink{},
		notifier: &fakeNotifier{},
	}
	p, err := NewPipeline(Config{
		Guard:      f.guard,
		Fetcher:    f.fetcher,
		Identifier: f.identifier,
		Resolver:   f.resolver,
		Sink:       f.sink,
		Notifier:   f.notifier,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	f.pipeline = p
	return f
}

func job() types.MealJob {
	return types.MealJob{
		IdempotencyKey: "update-42",
		ChatIdentity:   "chat-7",
		ImageReference: "file-abc",
	}
}

func testLogger() *log.Logger {
	return log.NewLogger("update-42", "chat-7", 1)
}

func TestProcessCommitted(t *testing.T) {
	f := newFixture(t)

	outcome := f.pipeline.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobCommitted {
		t.Fatalf("status = %v, err = %v", outcome.Status, outcome.Err)
	}
	if !outcome.Ack() {
		t.Error("committed job must be ackable")
	}
	if outcome.Summary.ItemCount != 2 || outcome.Summary.Unresolved != 0 {
		t.Errorf("summary = %+v", outcome.Summary)
	}
	if outcome.Summary.Totals.Calories != 350 {
		t.Errorf("Calories = %v, want 350", outcome.Summary.Totals.Calories)
	}
	if f.sink.appends != 1 {
		t.Errorf("sink appends = %d, want 1", f.sink.appends)
	}
	if f.guard.commits != 1 {
		t.Errorf("guard commits = %d, want 1", f.guard.commits)
	}
	if len(f.notifier.messages) != 1 || !strings.Contains(f.notifier.messages[0], "chicken") {
		t.Errorf("notifications = %q", f.notifier.messages)
	}
}

func TestProcessTwiceWritesOnce(t *testing.T) {
	f := newFixture(t)

	first := f.pipeline.Process(t.Context(), job(), testLogger())
	second := f.pipeline.Process(t.Context(), job(), testLogger())

	if first.Status != types.JobCommitted {
		t.Fatalf("first status = %v", first.Status)
	}
	if second.Status != types.JobDuplicate {
		t.Fatalf("second status = %v", second.Status)
	}
	if !second.Ack() {
		t.Error("duplicate must be ackable, the work is done")
	}
	if f.sink.appends != 1 {
		t.Errorf("sink appends = %d, want exactly 1", f.sink.appends)
	}
	if f.fetcher.calls != 1 {
		t.Errorf("fetcher calls = %d, duplicate must short-circuit", f.fetcher.calls)
	}
	// The cached summary is replayed to the user best-effort.
	if len(f.notifier.messages) != 2 {
		t.Errorf("notifications = %d, want 2 (original + replay)", len(f.notifier.messages))
	}
}

func TestProcessInProgressElsewhere(t *testing.T) {
	f := newFixture(t)
	f.guard.state["update-42"] = "in_progress"

	outcome := f.pipeline.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobInProgress {
		t.Fatalf("status = %v", outcome.Status)
	}
	if outcome.Ack() {
		t.Error("in-progress must not ack; the owner may still fail")
	}
	if f.fetcher.calls != 0 {
		t.Error("must not process while another attempt owns the claim")
	}
}

func TestProcessClaimStoreDown(t *testing.T) {
	f := newFixture(t)
	f.guard.failOn = "claim"

	outcome := f.pipeline.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobRetryable {
		t.Fatalf("status = %v", outcome.Status)
	}
	if f.fetcher.calls != 0 {
		t.Error("must not process without a confirmed claim")
	}
}

func TestProcessFetchFailureReleasesClaim(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = types.NewStageError(types.ErrFetch, "get_file", errors.New("502"))

	outcome := f.pipeline.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobRetryable {
		t.Fatalf("status = %v", outcome.Status)
	}
	if _, held := f.guard.state["update-42"]; held {
		t.Error("claim must be released so a redelivery can retry immediately")
	}
}

func TestProcessNoFoodRejected(t *testing.T) {
	f := newFixture(t)
	f.identifier.result = nil
	f.identifier.err = types.NewStageError(types.ErrIdentification, "identify", errors.New("empty item list"))

	outcome := f.pipeline.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobRejected {
		t.Fatalf("status = %v", outcome.Status)
	}
	if len(f.notifier.messages) != 1 || f.notifier.messages[0] != telegram.NoFoodMessage {
		t.Errorf("notifications = %q, want the no-food message", f.notifier.messages)
	}
	if f.sink.appends != 0 {
		t.Error("nothing to persist for a rejected job")
	}
	if _, held := f.guard.state["update-42"]; held {
		t.Error("rejected job must not hold the claim")
	}
}

func TestProcessModelOutageRetryable(t *testing.T) {
	f := newFixture(t)
	f.identifier.result = nil
	f.identifier.err = types.NewStageError(types.ErrModel, "identify", errors.New("429"))

	outcome := f.pipeline.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobRetryable {
		t.Fatalf("status = %v", outcome.Status)
	}
	if len(f.notifier.messages) != 0 {
		t.Errorf("transient failures are silent, got %q", f.notifier.messages)
	}
}

func TestProcessPartialSuccessCommits(t *testing.T) {
	f := newFixture(t)
	f.resolver.failing = map[string]error{
		"rice": types.NewStageError(types.ErrResolution, "resolve", errors.New("no match")),
	}

	outcome := f.pipeline.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobCommitted {
		t.Fatalf("status = %v, err = %v", outcome.Status, outcome.Err)
	}
	if outcome.Summary.ItemCount != 1 || outcome.Summary.Unresolved != 1 {
		t.Errorf("summary = %+v", outcome.Summary)
	}
	if !strings.Contains(f.notifier.messages[0], "could not be matched") {
		t.Errorf("partial result not surfaced: %q", f.notifier.messages[0])
	}
}

func TestProcessAllItemsFailedRetryable(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("lookup down")
	f.resolver.failing = map[string]error{"chicken": boom, "rice": boom}

	outcome := f.pipeline.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobRetryable {
		t.Fatalf("status = %v", outcome.Status)
	}
	if f.sink.appends != 0 {
		t.Error("fully failed meal must not be persisted")
	}
	if _, held := f.guard.state["update-42"]; held {
		t.Error("claim must be released")
	}
}

func TestProcessSinkFailureRetryable(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("append: 503")

	outcome := f.pipeline.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobRetryable {
		t.Fatalf("status = %v", outcome.Status)
	}
	if f.guard.commits != 0 {
		t.Error("must not commit without a durable write")
	}
}

func TestProcessNotifyFailureStillCommits(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("chat blocked the bot")

	outcome := f.pipeline.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobCommitted {
		t.Fatalf("status = %v, notification delivery must not lose persisted work", outcome.Status)
	}
	if f.guard.commits != 1 {
		t.Error("commit missing")
	}
}

func TestProcessCommitFailureStillAcks(t *testing.T) {
	f := newFixture(t)
	f.guard.failOn = "commit"

	outcome := f.pipeline.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobCommitted {
		t.Fatalf("status = %v, persisted work must ack even if the marker write fails", outcome.Status)
	}
	if f.sink.appends != 1 {
		t.Errorf("sink appends = %d", f.sink.appends)
	}
}

func TestProcessArchiveFailureIsBestEffort(t *testing.T) {
	f := newFixture(t)
	archiver := &fakeArchiver{err: errors.New("bucket denied")}
	p, err := NewPipeline(Config{
		Guard:      f.guard,
		Fetcher:    f.fetcher,
		Identifier: f.identifier,
		Resolver:   f.resolver,
		Sink:       f.sink,
		Notifier:   f.notifier,
		Archiver:   archiver,
	})
	if err != nil {
		t.Fatal(err)
	}

	outcome := p.Process(t.Context(), job(), testLogger())

	if outcome.Status != types.JobCommitted {
		t.Fatalf("status = %v, archive is best-effort", outcome.Status)
	}
	if archiver.calls != 1 {
		t.Errorf("archiver calls = %d", archiver.calls)
	}
}

func TestResolveAllBoundsConcurrency(t *testing.T) {
	f := newFixture(t)
	items := make([]types.FoodItemCandidate, 16)
	for i := range items {
		items[i] = types.FoodItemCandidate{Name: "item", Grams: 100}
	}
	f.identifier.result = identification(items...)

	p, err := NewPipeline(Config{
		Guard:              f.guard,
		Fetcher:            f.fetcher,
		Identifier:         f.identifier,
		Resolver:           f.resolver,
		Sink:               f.sink,
		Notifier:           f.notifier,
		MaxConcurrentItems: 3,
	})
	if err != nil {
		t.Fatal(err)
	}

	outcome := p.Process(t.Context(), job(), testLogger())
	if outcome.Status != types.JobCommitted {
		t.Fatalf("status = %v", outcome.Status)
	}
	if f.resolver.peak > 3 {
		t.Errorf("peak concurrent resolutions = %d, limit 3", f.resolver.peak)
	}
}

func TestNewPipelineValidation(t *testing.T) {
	if _, err := NewPipeline(Config{}); err == nil {
		t.Error("expected error for empty config")
	}
}
