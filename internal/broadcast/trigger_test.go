package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"horobot/internal/delivery"
	"horobot/internal/eventbus"
	"horobot/internal/transport"
	logx "horobot/pkg/logx"
)

type staticRoster struct {
	members []transport.Member
	err     error
	calls   int
}

func (r *staticRoster) Members(context.Context) ([]transport.Member, error) {
	r.calls++
	return r.members, r.err
}

type scriptedDeliverer struct {
	mu       sync.Mutex
	outcomes map[string]delivery.Outcome
	fail     map[string]error
	calls    []string
}

func (d *scriptedDeliverer) Deliver(_ context.Context, id string) (delivery.Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, id)
	if err := d.fail[id]; err != nil {
		return delivery.Sent, err
	}
	if o, ok := d.outcomes[id]; ok {
		return o, nil
	}
	return delivery.Sent, nil
}

func (d *scriptedDeliverer) called() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type day struct {
	mu sync.Mutex
	s  string
}

func (d *day) get() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.s
}

func (d *day) set(s string) {
	d.mu.Lock()
	d.s = s
	d.mu.Unlock()
}

type recordingPruner struct{ dates []string }

func (p *recordingPruner) Prune(today string) int {
	p.dates = append(p.dates, today)
	return 0
}

func members(ids ...string) []transport.Member {
	out := make([]transport.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, transport.Member{ID: id})
	}
	return out
}

func newTrigger(t *testing.T, r Roster, d Deliverer, clock *day, cfg Config, pr Pruner, bus eventbus.Bus) *Trigger {
	t.Helper()
	tr, err := New(Options{Roster: r, Deliver: d, Today: clock.get, Pruner: pr, Bus: bus}, cfg, logx.Nop())
	require.NoError(t, err)
	return tr
}

func TestFireDeliversEveryMemberOnce(t *testing.T) {
	roster := &staticRoster{members: members("U1", "U2", "U3")}
	d := &scriptedDeliverer{outcomes: map[string]delivery.Outcome{
		"U2": delivery.SkippedNoBirthdate,
		"U3": delivery.SentFallback,
	}}
	clock := &day{s: "2024-5-13"}
	tr := newTrigger(t, roster, d, clock, Config{}, nil, nil)

	sum, err := tr.Fire(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"U1", "U2", "U3"}, d.called())
	require.Equal(t, 3, sum.Members)
	require.Equal(t, 1, sum.Sent)
	require.Equal(t, 1, sum.Skipped)
	require.Equal(t, 1, sum.Fallback)
	require.NotEmpty(t, sum.RunID)

	// Skipped users are marked too: a second firing the same day sends nothing.
	sum, err = tr.Fire(context.Background())
	require.NoError(t, err)
	require.Len(t, d.called(), 3)
	require.Equal(t, 3, sum.AlreadySent)
	require.Equal(t, 2, roster.calls)
}

func TestRolloverClearsMarkers(t *testing.T) {
	roster := &staticRoster{members: members("U1")}
	d := &scriptedDeliverer{}
	clock := &day{s: "2024-5-13"}
	pr := &recordingPruner{}
	tr := newTrigger(t, roster, d, clock, Config{}, pr, nil)

	_, err := tr.Fire(context.Background())
	require.NoError(t, err)
	require.True(t, tr.Marker().Has("U1", "2024-5-13"))

	clock.set("2024-5-14")
	_, err = tr.Fire(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"U1", "U1"}, d.called())
	require.False(t, tr.Marker().Has("U1", "2024-5-13"))
	require.True(t, tr.Marker().Has("U1", "2024-5-14"))
	require.Equal(t, 1, tr.Marker().Len())
	require.Equal(t, []string{"2024-5-13", "2024-5-14"}, pr.dates)
}

func TestFirstFailureAbortsFiring(t *testing.T) {
	boom := errors.New("ratelimited")
	roster := &staticRoster{members: members("U1", "U2", "U3")}
	d := &scriptedDeliverer{fail: map[string]error{"U2": boom}}
	clock := &day{s: "2024-5-13"}
	tr := newTrigger(t, roster, d, clock, Config{}, nil, nil)

	sum, err := tr.Fire(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"U1", "U2"}, d.called())
	require.True(t, sum.Aborted)
	require.Equal(t, 1, sum.Failed)
	require.True(t, tr.Marker().Has("U1", "2024-5-13"))
	require.False(t, tr.Marker().Has("U2", "2024-5-13"))

	last, ok := tr.Last()
	require.True(t, ok)
	require.Equal(t, sum.RunID, last.RunID)
	require.Contains(t, last.Error, "ratelimited")

	// The next firing picks up where the last one stopped.
	delete(d.fail, "U2")
	_, err = tr.Fire(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"U1", "U2", "U2", "U3"}, d.called())
}

func TestContinueOnErrorIsolatesFailures(t *testing.T) {
	boom := errors.New("channel_not_found")
	roster := &staticRoster{members: members("U1", "U2", "U3")}
	d := &scriptedDeliverer{fail: map[string]error{"U2": boom}}
	clock := &day{s: "2024-5-13"}
	tr := newTrigger(t, roster, d, clock, Config{ContinueOnError: true}, nil, nil)

	sum, err := tr.Fire(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"U1", "U2", "U3"}, d.called())
	require.False(t, sum.Aborted)
	require.Equal(t, 2, sum.Sent)
	require.Equal(t, 1, sum.Failed)
}

func TestRosterFailureAborts(t *testing.T) {
	roster := &staticRoster{err: errors.New("invalid_auth")}
	d := &scriptedDeliverer{}
	tr := newTrigger(t, roster, d, &day{s: "2024-5-13"}, Config{}, nil, nil)

	sum, err := tr.Fire(context.Background())
	require.Error(t, err)
	require.True(t, sum.Aborted)
	require.Empty(t, d.called())
}

func TestPoolDeliversAll(t *testing.T) {
	ids := []string{"U1", "U2", "U3", "U4", "U5", "U6", "U7", "U8"}
	roster := &staticRoster{members: members(ids...)}
	d := &scriptedDeliverer{}
	tr := newTrigger(t, roster, d, &day{s: "2024-5-13"}, Config{Workers: 3}, nil, nil)

	sum, err := tr.Fire(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, ids, d.called())
	require.Equal(t, len(ids), sum.Sent)
	require.Equal(t, len(ids), tr.Marker().Len())
}

func TestPoolIsolatedFailure(t *testing.T) {
	boom := errors.New("boom")
	roster := &staticRoster{members: members("U1", "U2", "U3", "U4")}
	d := &scriptedDeliverer{fail: map[string]error{"U3": boom}}
	tr := newTrigger(t, roster, d, &day{s: "2024-5-13"}, Config{Workers: 2, ContinueOnError: true}, nil, nil)

	sum, err := tr.Fire(context.Background())
	require.ErrorIs(t, err, boom)
	require.ElementsMatch(t, []string{"U1", "U2", "U3", "U4"}, d.called())
	require.Equal(t, 3, sum.Sent)
	require.Equal(t, 1, sum.Failed)
	require.False(t, tr.Marker().Has("U3", "2024-5-13"))
}

func TestFirePublishesEvents(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	tr := newTrigger(t, &staticRoster{members: members("U1")}, &scriptedDeliverer{}, &day{s: "2024-5-13"}, Config{}, nil, bus)
	sum, err := tr.Fire(context.Background())
	require.NoError(t, err)

	started := <-ch
	require.Equal(t, eventbus.TypeFiringStarted, started.Type)
	require.Equal(t, Started{RunID: sum.RunID, Date: "2024-5-13"}, started.Data)

	finished := <-ch
	require.Equal(t, eventbus.TypeFiringFinished, finished.Type)
	got, ok := finished.Data.(Summary)
	require.True(t, ok)
	require.Equal(t, 1, got.Sent)
}

func TestSentMarker(t *testing.T) {
	m := NewSentMarker()
	require.True(t, m.Roll("2024-5-13"))
	require.False(t, m.Roll("2024-5-13"))

	require.True(t, m.Claim("U1", "2024-5-13"))
	require.False(t, m.Claim("U1", "2024-5-13"))
	m.Release("U1", "2024-5-13")
	require.True(t, m.Claim("U1", "2024-5-13"))

	require.True(t, m.Roll("2024-5-14"))
	require.Zero(t, m.Len())
	require.Equal(t, "2024-5-14", m.Date())
}
