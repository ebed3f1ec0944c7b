package directory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"horobot/internal/transport"
	logx "horobot/pkg/logx"
)

type fakeDirectory struct {
	mu           sync.Mutex
	profiles     map[string]*transport.Profile
	profileErr   error
	profileCalls int

	pages     map[string]transport.MemberPage
	listErr   error
	listCalls []string
	limits    []int
}

func (f *fakeDirectory) UserProfile(_ context.Context, id string) (*transport.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, errors.New("user_not_found")
	}
	return p, nil
}

func (f *fakeDirectory) ListUsers(_ context.Context, cursor string, limit int) (transport.MemberPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, cursor)
	f.limits = append(f.limits, limit)
	if f.listErr != nil {
		return transport.MemberPage{}, f.listErr
	}
	return f.pages[cursor], nil
}

func TestResolverCachesProfile(t *testing.T) {
	dir := &fakeDirectory{profiles: map[string]*transport.Profile{
		"U1": {UserID: "U1", DisplayName: "Kim Minji", Fields: map[string]string{"XfBIRTH": "1990-05-12"}},
	}}
	r := NewResolver(dir, logx.Nop())

	p1, ok := r.Profile(context.Background(), "U1")
	require.True(t, ok)
	p2, ok := r.Profile(context.Background(), "U1")
	require.True(t, ok)

	require.Same(t, p1, p2)
	require.Equal(t, "1990-05-12", p2.Field("XfBIRTH"))
	require.Equal(t, 1, dir.profileCalls)
	require.Equal(t, 1, r.Len())
}

func TestResolverDoesNotCacheFailures(t *testing.T) {
	dir := &fakeDirectory{profileErr: errors.New("ratelimited")}
	r := NewResolver(dir, logx.Nop())

	_, ok := r.Profile(context.Background(), "U1")
	require.False(t, ok)
	_, ok = r.Profile(context.Background(), "U1")
	require.False(t, ok)
	require.Equal(t, 2, dir.profileCalls)
	require.Zero(t, r.Len())

	dir.profileErr = nil
	dir.profiles = map[string]*transport.Profile{"U1": {UserID: "U1"}}
	_, ok = r.Profile(context.Background(), "U1")
	require.True(t, ok)
}

func TestRosterFollowsCursorAndFilters(t *testing.T) {
	dir := &fakeDirectory{pages: map[string]transport.MemberPage{
		"": {
			Members: []transport.Member{
				{ID: "U1"},
				{ID: "B1", IsBot: true},
				{ID: "U2"},
			},
			NextCursor: "c2",
		},
		"c2": {
			Members: []transport.Member{
				{ID: "U3", Deleted: true},
				{ID: "U4"},
			},
			NextCursor: "c3",
		},
		"c3": {Members: []transport.Member{{ID: "U5"}}},
	}}
	r := NewRoster(dir, 0, logx.Nop())

	got, err := r.Members(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []string{"U1", "U2", "U4", "U5"}, ids)
	require.Equal(t, []string{"", "c2", "c3"}, dir.listCalls)
	require.Equal(t, []int{500, 500, 500}, dir.limits)
}

func TestRosterSinglePageWithBot(t *testing.T) {
	dir := &fakeDirectory{pages: map[string]transport.MemberPage{
		"": {Members: []transport.Member{{ID: "UHUMAN"}, {ID: "UBOT", IsBot: true}}},
	}}
	got, err := NewRoster(dir, 200, logx.Nop()).Members(context.Background())
	require.NoError(t, err)
	require.Equal(t, []transport.Member{{ID: "UHUMAN"}}, got)
	require.Equal(t, []int{200}, dir.limits)
}

func TestRosterPropagatesListError(t *testing.T) {
	boom := errors.New("invalid_auth")
	dir := &fakeDirectory{listErr: boom}
	_, err := NewRoster(dir, 0, logx.Nop()).Members(context.Background())
	require.ErrorIs(t, err, boom)
}
