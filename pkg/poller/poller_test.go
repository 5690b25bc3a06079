package poller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/etdc/insight/internal/testutil"
	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/poller"
	"github.com/etdc/insight/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastConfig() poller.Config {
	return poller.Config{
		Interval:               5 * time.Millisecond,
		FollowUpDelay:          5 * time.Millisecond,
		MaxConsecutiveFailures: 3,
	}
}

func TestPoller_InvalidID(t *testing.T) {
	gw := testutil.NewMockGateway()
	p := poller.New(gw, fastConfig())

	for _, id := range []domain.TaskID{"", "undefined"} {
		_, err := p.Poll(testutil.NewTestContext(t), id)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
		assert.Equal(t, 0, gw.GetStatusCallCount(id), "no request for %q", id)
	}
}

func TestPoller_FailureIsNotFound(t *testing.T) {
	gw := testutil.NewMockGateway()
	status := testutil.NewParentStatus(t, domain.TaskStateFailure,
		domain.ProcessRef{ProcessType: domain.ProcessWeb, TaskID: "w-1"})
	status.FoundPosts = 10
	gw.SetStatus("7", status)

	_, err := poller.New(gw, fastConfig()).Poll(testutil.NewTestContext(t), "7")

	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	assert.Equal(t, 0, gw.GetStatusCallCount("w-1"), "failed tasks never fan out")
}

func TestPoller_SuccessWithoutSubTasks(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.StatusFunc = func(ctx context.Context, id domain.TaskID, call int) (*domain.TaskStatus, error) {
		if call < 3 {
			return testutil.NewParentStatus(t, domain.TaskStatePending), nil
		}
		return testutil.NewParentStatus(t, domain.TaskStateSuccess), nil
	}

	var mu sync.Mutex
	var seen []domain.TaskState
	p := poller.New(gw, fastConfig(), poller.WithStatusHook(func(s *domain.TaskStatus) {
		mu.Lock()
		seen = append(seen, s.State)
		mu.Unlock()
	}))

	outcome, err := p.Poll(testutil.NewTestContext(t), "8")
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStateSuccess, outcome.Status.State)
	assert.Equal(t, 3, outcome.Rounds)
	assert.Empty(t, outcome.Results.Snapshot())
	assert.Equal(t, []domain.TaskState{
		domain.TaskStatePending, domain.TaskStatePending, domain.TaskStateSuccess,
	}, seen)
}

func TestPoller_FanOutUntilAllTerminal(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.SetStatus("9", testutil.NewParentStatus(t, domain.TaskStateSuccess,
		domain.ProcessRef{ProcessType: domain.ProcessWeb, TaskID: "w-1"},
		domain.ProcessRef{ProcessType: domain.ProcessFB, TaskID: "fb-1"},
		domain.ProcessRef{ProcessType: domain.ProcessNLA, TaskID: "nla-1"},
	))
	gw.SetStatus("w-1", testutil.NewSubTaskStatus(t, domain.TaskStateSuccess, testutil.WebPayload("# Findings", "https://a.kz")))
	gw.SetStatus("nla-1", testutil.NewSubTaskStatus(t, domain.TaskStateFailure, nil))

	fbPending := testutil.NewSubTaskStatus(t, domain.TaskStateStarted, nil)
	fbDone := testutil.NewSubTaskStatus(t, domain.TaskStateSuccess, testutil.OpinionPayload("fb", 2, "negative"))
	gw.SetStatus("fb-1", fbPending)

	var mu sync.Mutex
	applied := map[domain.ProcessType]int{}
	p := poller.New(gw, fastConfig(), poller.WithSubTaskHook(func(r domain.SubTaskResult) {
		mu.Lock()
		applied[r.Type]++
		n := applied[r.Type]
		mu.Unlock()
		if r.Type == domain.ProcessFB && n == 1 {
			gw.SetStatus("fb-1", fbDone)
		}
	}))

	outcome, err := p.Poll(testutil.NewTestContext(t), "9")
	require.NoError(t, err)

	snapshot := outcome.Results.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, domain.TaskStateSuccess, snapshot[domain.ProcessFB].State)
	assert.Equal(t, domain.TaskStateFailure, snapshot[domain.ProcessNLA].State, "failed sub-task is terminal")
	assert.JSONEq(t, `{"citations":["https://a.kz"],"research":"# Findings"}`, string(snapshot[domain.ProcessWeb].Payload))

	assert.Equal(t, 1, gw.GetStatusCallCount("w-1"), "finished sub-tasks are not refetched")
	assert.Equal(t, 2, gw.GetStatusCallCount("fb-1"))
	assert.Equal(t, 2, applied[domain.ProcessFB])
}

func TestPoller_SubTaskFetchErrorStaysPending(t *testing.T) {
	gw := testutil.NewMockGateway()
	parent := testutil.NewParentStatus(t, domain.TaskStateSuccess,
		domain.ProcessRef{ProcessType: domain.ProcessDialog, TaskID: "d-1"},
		domain.ProcessRef{ProcessType: domain.ProcessWeb, TaskID: "w-1"},
	)
	gw.StatusFunc = func(ctx context.Context, id domain.TaskID, call int) (*domain.TaskStatus, error) {
		switch id {
		case "10":
			return parent, nil
		case "d-1":
			if call == 1 {
				return nil, errors.New("connection reset")
			}
			return testutil.NewSubTaskStatus(t, domain.TaskStateSuccess, testutil.OpinionPayload("d", 1, "positive")), nil
		default:
			return testutil.NewSubTaskStatus(t, domain.TaskStateSuccess, testutil.WebPayload("text")), nil
		}
	}

	outcome, err := poller.New(gw, fastConfig()).Poll(testutil.NewTestContext(t), "10")
	require.NoError(t, err)

	r, ok := outcome.Results.Get(domain.ProcessDialog)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStateSuccess, r.State)
	assert.Equal(t, 2, gw.GetStatusCallCount("d-1"))
}

func TestPoller_BreakerGivesUp(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.StatusErrors["11"] = errors.New("502 bad gateway")

	_, err := poller.New(gw, fastConfig()).Poll(testutil.NewTestContext(t), "11")

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTaskNotFound)
	assert.Contains(t, err.Error(), "502 bad gateway")
	assert.Equal(t, 3, gw.GetStatusCallCount("11"))
}

func TestPoller_TransientErrorsRecover(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.StatusFunc = func(ctx context.Context, id domain.TaskID, call int) (*domain.TaskStatus, error) {
		if call%2 == 1 && call < 6 {
			return nil, errors.New("timeout")
		}
		if call < 6 {
			return testutil.NewParentStatus(t, domain.TaskStateStarted), nil
		}
		return testutil.NewParentStatus(t, domain.TaskStateSuccess), nil
	}

	_, err := poller.New(gw, fastConfig()).Poll(testutil.NewTestContext(t), "12")
	assert.NoError(t, err, "failures separated by successes never open the breaker")
}

func TestPoller_Cancellation(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.SetStatus("13", testutil.NewParentStatus(t, domain.TaskStatePending))

	cfg := fastConfig()
	cfg.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := poller.New(gw, cfg).Poll(ctx, "13")
		done <- err
	}()

	require.Eventually(t, func() bool { return gw.GetStatusCallCount("13") == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}

func TestPoller_RunUsesSharedResultSet(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.SetStatus("14", testutil.NewParentStatus(t, domain.TaskStateSuccess,
		domain.ProcessRef{ProcessType: domain.ProcessInstagram, TaskID: "ig-1"}))
	gw.SetStatus("ig-1", testutil.NewSubTaskStatus(t, domain.TaskStateSuccess, testutil.OpinionPayload("ig", 1, "neutral")))

	results := state.NewResultSet("14")
	outcome, err := poller.New(gw, fastConfig()).Run(testutil.NewTestContext(t), results)
	require.NoError(t, err)

	assert.Same(t, results, outcome.Results)
	assert.Equal(t, "Public opinion on the new water tariff", results.Parent().Prompt)
	assert.True(t, results.AllTerminal())
	assert.True(t, results.Closed())

	late := domain.SubTaskResult{Type: domain.ProcessInstagram, TaskID: "ig-1", State: domain.TaskStateSuccess}
	assert.False(t, results.Apply(late), "late responses are ignored once polling returned")
}

func TestPoller_FailedRunClosesResultSet(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.SetStatus("15", testutil.NewParentStatus(t, domain.TaskStateFailure))

	results := state.NewResultSet("15")
	_, err := poller.New(gw, fastConfig()).Run(testutil.NewTestContext(t), results)

	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	assert.True(t, results.Closed())
}

func TestBreaker(t *testing.T) {
	b := poller.NewBreaker(2)
	assert.Equal(t, poller.BreakerClosed, b.GetState())

	require.NoError(t, b.RecordFailure(errors.New("one")))
	b.RecordSuccess()
	assert.Equal(t, 0, b.Failures())
	assert.NoError(t, b.LastError())

	require.NoError(t, b.RecordFailure(errors.New("one")))
	err := b.RecordFailure(errors.New("two"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two")
	assert.Equal(t, poller.BreakerOpen, b.GetState())

	b.Reset()
	assert.Equal(t, poller.BreakerClosed, b.GetState())
}
