package enforcer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	ids   []int64
	err   error
	calls int
	asked time.Time
}

func (f *fakeLister) ListExpiredSince(_ context.Context, now time.Time) ([]int64, error) {
	f.calls++
	f.asked = now
	return f.ids, f.err
}

type banCall struct {
	chatID string
	userID int64
	until  time.Time
}

type fakeRemover struct {
	mu      sync.Mutex
	fail    map[int64]bool
	calls   []banCall
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeRemover) BanMember(_ context.Context, chatID string, userID int64, until time.Time) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, banCall{chatID: chatID, userID: userID, until: until})
	if f.fail[userID] {
		return errors.New("telegram said no")
	}
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEnforcer(remover Remover, lister ExpiredLister) *Enforcer {
	return New(Options{
		GroupID:     "-100123",
		Schedule:    "@every 1h",
		BanDuration: time.Minute,
		Now:         func() time.Time { return fixedNow },
	}, remover, lister, zerolog.Nop())
}

func TestRunOnceRemovesExpiredAndContinuesOnFailure(t *testing.T) {
	lister := &fakeLister{ids: []int64{1, 2, 3}}
	remover := &fakeRemover{fail: map[int64]bool{2: true}}

	report, err := newTestEnforcer(remover, lister).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Candidates: 3, Removed: 2, Failed: 1}, report)
	assert.Equal(t, fixedNow, lister.asked)
	require.Len(t, remover.calls, 3)
	for i, call := range remover.calls {
		assert.Equal(t, int64(i+1), call.userID)
		assert.Equal(t, "-100123", call.chatID)
		assert.Equal(t, fixedNow.Add(time.Minute), call.until)
	}
}

func TestRunOnceNothingExpired(t *testing.T) {
	remover := &fakeRemover{}
	report, err := newTestEnforcer(remover, &fakeLister{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
	assert.Empty(t, remover.calls)
}

func TestRunOnceListFailure(t *testing.T) {
	remover := &fakeRemover{}
	_, err := newTestEnforcer(remover, &fakeLister{err: errors.New("db down")}).RunOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, remover.calls)
}

func TestRunOnceDisabledWithoutGroup(t *testing.T) {
	lister := &fakeLister{ids: []int64{1}}
	e := New(Options{}, &fakeRemover{}, lister, zerolog.Nop())

	assert.False(t, e.Enabled())
	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
	assert.Zero(t, lister.calls)

	require.NoError(t, e.Start(context.Background()))
	<-e.Stop().Done()
}

func TestRunOnceIsSingleFlight(t *testing.T) {
	remover := &fakeRemover{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	e := newTestEnforcer(remover, &fakeLister{ids: []int64{7}})

	done := make(chan error, 1)
	go func() {
		_, err := e.RunOnce(context.Background())
		done <- err
	}()

	<-remover.entered
	_, err := e.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(remover.block)
	require.NoError(t, <-done)
}

func TestRunOnceStopsOnCancelledContext(t *testing.T) {
	remover := &fakeRemover{}
	e := New(Options{
		GroupID: "-100123",
		Pause:   time.Hour,
		Now:     func() time.Time { return fixedNow },
	}, remover, &fakeLister{ids: []int64{1, 2}}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Removed)
	assert.Empty(t, remover.calls)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	e := New(Options{GroupID: "-1", Schedule: "not a schedule"}, &fakeRemover{}, &fakeLister{}, zerolog.Nop())
	require.Error(t, e.Start(context.Background()))
}
