package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/skillswap-api/internal/audit"
	"github.com/rajivgeraev/skillswap-api/internal/compat"
	"github.com/rajivgeraev/skillswap-api/internal/store"
	"github.com/rajivgeraev/skillswap-api/internal/store/memory"
)

const testCollection = "trades"

type fakeRegistry struct {
	initialized bool
	unhealthy   atomic.Int32 // сколько проверок подряд вернут false, -1 всегда
	checks      atomic.Int32
}

func (f *fakeRegistry) Initialized() bool { return f.initialized }

func (f *fakeRegistry) Healthy(context.Context) bool {
	f.checks.Add(1)
	n := f.unhealthy.Load()
	if n < 0 {
		return false
	}
	if n > 0 {
		f.unhealthy.Add(-1)
		return false
	}
	return true
}

type recordingSink struct {
	mu      sync.Mutex
	batches []audit.BatchRecord
	runs    []audit.RunRecord
}

func (s *recordingSink) RecordBatch(_ context.Context, b audit.BatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return nil
}

func (s *recordingSink) RecordRun(_ context.Context, r audit.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, r)
	return nil
}

func docID(i int) string {
	return fmt.Sprintf("doc-%03d", i)
}

func seed(n int) *memory.Store {
	s := memory.New()
	docs := make([]store.Document, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, store.Document{ID: docID(i), Data: map[string]any{
			"title":         fmt.Sprintf("Trade %d", i),
			"offeredSkills": []any{"Go"},
			"creatorId":     "u1",
		}})
	}
	s.Seed(testCollection, docs...)
	return s
}

func testOptions() Options {
	return Options{
		BatchSize:            10,
		MaxConcurrentBatches: 1,
		MaxRetries:           2,
		ErrorThreshold:       0.05,
		MinSampleSize:        50,
		InitialBackoff:       time.Millisecond,
		MaxBackoff:           2 * time.Millisecond,
		HealthCheckRetries:   3,
		HealthCheckDelay:     time.Millisecond,
	}
}

func newEngine(s store.Store, opts ...EngineOption) (*Engine, *fakeRegistry) {
	reg := &fakeRegistry{initialized: true}
	return New(s, reg, zerolog.Nop(), opts...), reg
}

func markTransform(doc store.Document) (map[string]any, error) {
	data := store.CloneData(doc.Data)
	data["schemaVersion"] = 2
	return data, nil
}

func TestValidatePrerequisites(t *testing.T) {
	s := seed(1)
	e, reg := newEngine(s)
	ctx := context.Background()

	assert.True(t, e.ValidatePrerequisites(ctx, testCollection))
	assert.False(t, e.ValidatePrerequisites(ctx, "missing"))
	assert.False(t, e.ValidatePrerequisites(ctx, ""))

	reg.initialized = false
	report := e.CheckPrerequisites(ctx, testCollection)
	assert.False(t, report.OK())
	assert.False(t, report.RegistryInitialized)

	reg.initialized = true
	s.SetHooks(memory.Hooks{OnPing: func() error { return errors.New("down") }})
	report = e.CheckPrerequisites(ctx, testCollection)
	assert.False(t, report.StoreReachable)
	assert.False(t, report.CollectionExists)

	_, err := e.ExecuteMigration(ctx, testCollection, markTransform, testOptions())
	require.ErrorIs(t, err, ErrPrerequisites)
	assert.Equal(t, StateIdle, e.State())
}

func TestExecuteMigrationRejectsBadArguments(t *testing.T) {
	e, _ := newEngine(seed(1))
	ctx := context.Background()

	_, err := e.ExecuteMigration(ctx, "", markTransform, testOptions())
	require.ErrorIs(t, err, compat.ErrInvalidArgument)

	_, err = e.ExecuteMigration(ctx, testCollection, nil, testOptions())
	require.ErrorIs(t, err, compat.ErrInvalidArgument)

	opts := testOptions()
	opts.ErrorThreshold = 1.5
	_, err = e.ExecuteMigration(ctx, testCollection, markTransform, opts)
	require.ErrorIs(t, err, compat.ErrInvalidArgument)
}

func TestMigrationCompletes(t *testing.T) {
	s := seed(45)
	sink := &recordingSink{}
	e, _ := newEngine(s, WithAuditSink(sink))
	opts := testOptions()
	opts.MaxConcurrentBatches = 3
	opts.Operator = "op-1"

	result, err := e.ExecuteMigration(context.Background(), testCollection, TradeTransform, opts)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, StateCompleted, e.State())
	assert.EqualValues(t, 45, result.TotalDocuments)
	assert.EqualValues(t, 45, result.TotalProcessed)
	assert.EqualValues(t, 45, result.Succeeded)
	assert.EqualValues(t, 0, result.Remaining)
	assert.Equal(t, 5, result.BatchesProcessed)
	assert.True(t, result.DataIntegrityPreserved)
	assert.Empty(t, result.Errors)
	assert.NoError(t, result.Err())

	doc, err := s.Get(context.Background(), testCollection, docID(7))
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Data["schemaVersion"])
	assert.Equal(t, "u1", doc.Data["creatorId"])
	assert.Equal(t, map[string]any{"creator": "u1"}, doc.Data["participants"])

	assert.Len(t, sink.batches, 5)
	require.Len(t, sink.runs, 1)
	assert.Equal(t, "op-1", sink.runs[0].Operator)
	assert.Equal(t, string(StateCompleted), sink.runs[0].State)

	// повторный запуск пропускает уже переведенные документы
	result, err = e.ExecuteMigration(context.Background(), testCollection, TradeTransform, opts)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.EqualValues(t, 45, result.Skipped)
	assert.EqualValues(t, 0, result.Succeeded)
}

func TestSentinelDocumentBelowThreshold(t *testing.T) {
	s := seed(200)
	e, _ := newEngine(s)
	bad := docID(50)
	var calls atomic.Int32

	transform := func(doc store.Document) (map[string]any, error) {
		if doc.ID == bad {
			calls.Add(1)
			return nil, errors.New("broken record")
		}
		return markTransform(doc)
	}

	result, err := e.ExecuteMigration(context.Background(), testCollection, transform, testOptions())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.EmergencyStopTriggered)
	assert.EqualValues(t, 200, result.TotalProcessed)
	assert.EqualValues(t, 199, result.Succeeded)
	assert.EqualValues(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, bad, result.Errors[0].DocumentID)
	assert.Equal(t, 3, result.Errors[0].Attempts)
	assert.EqualValues(t, 3, calls.Load())
	assert.EqualValues(t, 2, result.PerformanceMetrics.Retries)

	doc, err := s.Get(context.Background(), testCollection, bad)
	require.NoError(t, err)
	assert.NotContains(t, doc.Data, "schemaVersion")
}

func TestHighFailureRateEmergencyStops(t *testing.T) {
	s := seed(500)
	e, _ := newEngine(s)
	opts := testOptions()
	opts.MaxRetries = 0

	var n atomic.Int32
	transform := func(doc store.Document) (map[string]any, error) {
		if n.Add(1)%2 == 0 {
			return nil, errors.New("flaky")
		}
		return markTransform(doc)
	}

	result, err := e.ExecuteMigration(context.Background(), testCollection, transform, opts)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.EmergencyStopTriggered)
	assert.Equal(t, StateEmergencyStopped, result.State)
	assert.NotEmpty(t, result.EmergencyStopReason)
	assert.Less(t, result.TotalProcessed, int64(500))
	assert.GreaterOrEqual(t, result.TotalProcessed, int64(50))
	assert.Positive(t, result.Remaining)
	assert.ErrorIs(t, result.Err(), ErrEmergencyStop)
}

func TestSmallCollectionStopsAfterFirstBatch(t *testing.T) {
	e, _ := newEngine(seed(80))
	failing := func(store.Document) (map[string]any, error) { return nil, errors.New("nope") }
	opts := testOptions()
	opts.MaxRetries = 0
	opts.MinSampleSize = 100

	result, err := e.ExecuteMigration(context.Background(), testCollection, failing, opts)
	require.NoError(t, err)

	assert.True(t, result.EmergencyStopTriggered)
	assert.Equal(t, StateEmergencyStopped, result.State)
	assert.EqualValues(t, 10, result.TotalProcessed)
	assert.Equal(t, 1, result.BatchesProcessed)
	assert.EqualValues(t, 70, result.Remaining)
}

func TestCollectionSmallerThanBatchStillStops(t *testing.T) {
	e, _ := newEngine(seed(5))
	failing := func(store.Document) (map[string]any, error) { return nil, errors.New("nope") }
	opts := testOptions()
	opts.MaxRetries = 0

	result, err := e.ExecuteMigration(context.Background(), testCollection, failing, opts)
	require.NoError(t, err)
	assert.True(t, result.EmergencyStopTriggered)
	assert.EqualValues(t, 5, result.Failed)
	assert.False(t, result.Success)
}

func TestPermanentWriteFailsBatchAndContinues(t *testing.T) {
	s := seed(30)
	var writes atomic.Int32
	s.SetHooks(memory.Hooks{OnBatchWrite: func([]store.WriteOp) error {
		if writes.Add(1) == 2 {
			return fmt.Errorf("%w: schema violation", store.ErrPermanentWrite)
		}
		return nil
	}})
	e, _ := newEngine(s)
	opts := testOptions()
	opts.ErrorThreshold = 0.5

	result, err := e.ExecuteMigration(context.Background(), testCollection, markTransform, opts)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.EqualValues(t, 10, result.Failed)
	assert.EqualValues(t, 20, result.Succeeded)
	assert.EqualValues(t, 1, result.PerformanceMetrics.FailedCommits)
	assert.False(t, result.RollbackExecuted)
}

func TestTransientWriteIsRetried(t *testing.T) {
	s := seed(10)
	var writes atomic.Int32
	s.SetHooks(memory.Hooks{OnBatchWrite: func([]store.WriteOp) error {
		if writes.Add(1) == 1 {
			return fmt.Errorf("%w: timeout", store.ErrTransient)
		}
		return nil
	}})
	e, _ := newEngine(s)

	result, err := e.ExecuteMigration(context.Background(), testCollection, markTransform, testOptions())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.EqualValues(t, 10, result.Succeeded)
	assert.EqualValues(t, 1, result.PerformanceMetrics.Retries)
}

func TestHardCommitFailureRollsBack(t *testing.T) {
	s := seed(30)
	originals := map[string]map[string]any{}
	for i := 0; i < 30; i++ {
		doc, err := s.Get(context.Background(), testCollection, docID(i))
		require.NoError(t, err)
		originals[doc.ID] = doc.Data
	}

	var writes atomic.Int32
	s.SetHooks(memory.Hooks{OnBatchWrite: func([]store.WriteOp) error {
		if writes.Add(1) == 3 {
			return errors.New("transaction aborted")
		}
		return nil
	}})
	e, _ := newEngine(s)

	result, err := e.ExecuteMigration(context.Background(), testCollection, markTransform, testOptions())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, StateRolledBack, result.State)
	assert.True(t, result.RollbackExecuted)
	assert.True(t, result.DataIntegrityPreserved)
	assert.EqualValues(t, 30, result.Remaining)
	assert.ErrorIs(t, result.Err(), ErrEmergencyStop)

	for id, want := range originals {
		doc, err := s.Get(context.Background(), testCollection, id)
		require.NoError(t, err)
		assert.Equal(t, want, doc.Data, id)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	s := seed(20)
	e, _ := newEngine(s)
	opts := testOptions()
	opts.DryRun = true

	result, err := e.ExecuteMigration(context.Background(), testCollection, markTransform, opts)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.DryRun)
	assert.EqualValues(t, 20, result.Succeeded)
	assert.Equal(t, 0, s.BatchWrites())
}

func TestValidatorRejectsDocuments(t *testing.T) {
	e, _ := newEngine(seed(10))
	opts := testOptions()
	opts.ErrorThreshold = 1
	opts.Validate = func(data map[string]any) error {
		if data["title"] == "Trade 3" {
			return errors.New("bad title")
		}
		return nil
	}

	result, err := e.ExecuteMigration(context.Background(), testCollection, markTransform, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Failed)
	assert.Equal(t, docID(3), result.Errors[0].DocumentID)
}

func TestGracefulShutdown(t *testing.T) {
	s := seed(100)
	e, _ := newEngine(s)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	transform := func(doc store.Document) (map[string]any, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return markTransform(doc)
	}

	type outcome struct {
		result *Result
		err    error
	}
	runDone := make(chan outcome, 1)
	go func() {
		res, err := e.ExecuteMigration(context.Background(), testCollection, transform, testOptions())
		runDone <- outcome{res, err}
	}()

	<-started
	shutdownDone := make(chan outcome, 1)
	go func() {
		res, err := e.RequestGracefulShutdown(context.Background())
		shutdownDone <- outcome{res, err}
	}()
	require.Eventually(t, func() bool { return e.Progress().StopRequested }, time.Second, time.Millisecond)
	close(release)

	shut := <-shutdownDone
	require.NoError(t, shut.err)
	run := <-runDone
	require.NoError(t, run.err)
	assert.Same(t, run.result, shut.result)

	result := run.result
	assert.Equal(t, StateGracefullyStopped, result.State)
	assert.False(t, result.Success)
	assert.True(t, result.DataIntegrityPreserved)
	assert.EqualValues(t, 10, result.TotalProcessed)
	assert.EqualValues(t, 90, result.Remaining)

	doc, err := s.Get(context.Background(), testCollection, docID(50))
	require.NoError(t, err)
	assert.NotContains(t, doc.Data, "schemaVersion")

	_, err = e.RequestGracefulShutdown(context.Background())
	require.ErrorIs(t, err, ErrNoActiveRun)
	assert.False(t, e.TriggerEmergencyStop("late"))
}

func TestShutdownDuringValidationReportsNoRun(t *testing.T) {
	s := seed(10)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.SetHooks(memory.Hooks{OnPing: func() error {
		once.Do(func() { close(entered) })
		<-release
		return errors.New("down")
	}})
	e, _ := newEngine(s)

	runErr := make(chan error, 1)
	go func() {
		_, err := e.ExecuteMigration(context.Background(), testCollection, markTransform, testOptions())
		runErr <- err
	}()
	<-entered
	assert.Equal(t, StateValidating, e.State())

	type outcome struct {
		result *Result
		err    error
	}
	shutdownDone := make(chan outcome, 1)
	go func() {
		res, err := e.RequestGracefulShutdown(context.Background())
		shutdownDone <- outcome{res, err}
	}()
	close(release)

	shut := <-shutdownDone
	assert.Nil(t, shut.result)
	require.ErrorIs(t, shut.err, ErrNoActiveRun)
	require.ErrorIs(t, <-runErr, ErrPrerequisites)
	assert.Equal(t, StateIdle, e.State())
}

func TestOperatorEmergencyStop(t *testing.T) {
	e, _ := newEngine(seed(100))

	var once sync.Once
	transform := func(doc store.Document) (map[string]any, error) {
		once.Do(func() { e.TriggerEmergencyStop("manual") })
		return markTransform(doc)
	}

	result, err := e.ExecuteMigration(context.Background(), testCollection, transform, testOptions())
	require.NoError(t, err)
	assert.Equal(t, StateEmergencyStopped, result.State)
	assert.Equal(t, "manual", result.EmergencyStopReason)
	assert.EqualValues(t, 10, result.TotalProcessed)
}

func TestZeroDowntimePausesOnUnhealthyServices(t *testing.T) {
	e, reg := newEngine(seed(20))
	reg.unhealthy.Store(2)
	opts := testOptions()
	opts.EnableZeroDowntime = true

	result, err := e.ExecuteMigration(context.Background(), testCollection, markTransform, opts)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.EqualValues(t, 2, result.PerformanceMetrics.HealthPauses)
	assert.EqualValues(t, 20, result.Succeeded)
}

func TestZeroDowntimeStopsWhenServicesStayDown(t *testing.T) {
	e, reg := newEngine(seed(20))
	reg.unhealthy.Store(-1)
	opts := testOptions()
	opts.EnableZeroDowntime = true

	result, err := e.ExecuteMigration(context.Background(), testCollection, markTransform, opts)
	require.NoError(t, err)
	assert.Equal(t, StateEmergencyStopped, result.State)
	assert.EqualValues(t, 0, result.TotalProcessed)
	assert.EqualValues(t, 20, result.Remaining)
	assert.EqualValues(t, opts.HealthCheckRetries+1, reg.checks.Load())
}

func TestEventsArePublished(t *testing.T) {
	e, _ := newEngine(seed(20))
	events, cancel := e.Subscribe(100)
	defer cancel()

	_, err := e.ExecuteMigration(context.Background(), testCollection, markTransform, testOptions())
	require.NoError(t, err)

	var types []EventType
	for len(events) > 0 {
		ev := <-events
		types = append(types, ev.Type)
	}
	require.NotEmpty(t, types)
	assert.Equal(t, EventRunStarted, types[0])
	assert.Equal(t, EventRunFinished, types[len(types)-1])
	assert.Contains(t, types, EventBatchCompleted)
}

func TestRunInProgress(t *testing.T) {
	e, _ := newEngine(seed(20))
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	transform := func(doc store.Document) (map[string]any, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return markTransform(doc)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.ExecuteMigration(context.Background(), testCollection, transform, testOptions())
	}()
	<-started

	_, err := e.ExecuteMigration(context.Background(), testCollection, markTransform, testOptions())
	require.ErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, StateRunning, e.State())
	assert.True(t, e.Progress().Running)

	close(release)
	<-done
	assert.False(t, e.Progress().Running)
	assert.NotNil(t, e.Progress().LastResult)
}
