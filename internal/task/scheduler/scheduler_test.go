package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	logx "horobot/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func stop(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestAddCronRejectsBadSpec(t *testing.T) {
	s := New(Config{Timezone: "Asia/Seoul"}, logx.Nop())
	require.Error(t, s.AddCron("daily", "not a spec", 0, func(context.Context) error { return nil }))
	require.Error(t, s.AddCron("", "@daily", 0, func(context.Context) error { return nil }))
}

func TestSnapshotReportsNextInZone(t *testing.T) {
	s := New(Config{Timezone: "Asia/Seoul"}, logx.Nop())
	require.NoError(t, s.AddCron("daily-horoscope", "30 10 * * mon-fri", 0, func(context.Context) error { return nil }))

	snap := s.Snapshot()
	require.False(t, snap.Running)
	require.Len(t, snap.Schedules, 1)
	require.True(t, snap.Schedules[0].Next.IsZero())

	s.Start(context.Background())
	defer stop(t, s)

	next := s.Next("daily-horoscope")
	require.False(t, next.IsZero())
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	local := next.In(seoul)
	require.Equal(t, 10, local.Hour())
	require.Equal(t, 30, local.Minute())
	require.NotEqual(t, time.Saturday, local.Weekday())
	require.NotEqual(t, time.Sunday, local.Weekday())
}

func TestAddCronReplacesByName(t *testing.T) {
	s := New(Config{}, logx.Nop())
	job := func(context.Context) error { return nil }
	require.NoError(t, s.AddCron("x", "@daily", 0, job))
	require.NoError(t, s.AddCron("x", "@hourly", 0, job))

	snap := s.Snapshot()
	require.Len(t, snap.Schedules, 1)
	require.Equal(t, "@hourly", snap.Schedules[0].Spec)
	require.True(t, s.Remove("x"))
	require.False(t, s.Remove("x"))
}

func TestCronFires(t *testing.T) {
	s := New(Config{}, logx.Nop())
	var n atomic.Int32
	require.NoError(t, s.AddCron("tick", "@every 1s", 0, func(context.Context) error {
		n.Add(1)
		return nil
	}))
	s.Start(context.Background())
	defer stop(t, s)

	require.Eventually(t, func() bool { return n.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestOnceRunsAfterStart(t *testing.T) {
	s := New(Config{}, logx.Nop())
	ran := make(chan struct{}, 1)
	require.NoError(t, s.AddOnce("run-on-start", time.Now(), time.Second, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		require.True(t, hasDeadline)
		ran <- struct{}{}
		return nil
	}))
	require.Len(t, s.Snapshot().Once, 1)

	s.Start(context.Background())
	defer stop(t, s)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("one-time job did not run")
	}
	require.Eventually(t, func() bool { return len(s.Snapshot().Once) == 0 }, time.Second, 10*time.Millisecond)
}

func TestStopCancelsRunningJob(t *testing.T) {
	s := New(Config{}, logx.Nop())
	started := make(chan struct{})
	require.NoError(t, s.AddOnce("long", time.Now(), 0, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	s.Start(context.Background())
	<-started
	stop(t, s)
}

func TestApplyTimezoneRestarts(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	require.NoError(t, s.AddCron("daily", "0 9 * * *", 0, func(context.Context) error { return nil }))
	s.Start(context.Background())
	defer stop(t, s)

	require.Equal(t, 9, s.Next("daily").UTC().Hour())

	s.Apply(Config{Timezone: "Asia/Seoul"})
	require.Equal(t, "Asia/Seoul", s.Snapshot().Timezone)
	// 09:00 KST is 00:00 UTC.
	require.Equal(t, 0, s.Next("daily").UTC().Hour())
}
