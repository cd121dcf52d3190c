package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func newTestGroup(t *testing.T, names ...string) (*Group, map[string]*Coordinator[payload], *testingclock.FakeClock) {
	t.Helper()
	fc := testingclock.NewFakeClock(epoch)
	g := NewGroup(GroupConfig{Interval: 2 * time.Minute, Clock: fc})
	members := make(map[string]*Coordinator[payload], len(names))
	for _, name := range names {
		src := &counter{}
		c, err := New(Config[payload]{
			Name:     name,
			Fetch:    src.fetch,
			Interval: time.Hour,
			Lazy:     true,
			Clock:    fc,
		})
		require.NoError(t, err)
		require.NoError(t, g.Add(c))
		members[name] = c
	}
	t.Cleanup(g.Stop)
	return g, members, fc
}

func TestGroup_AddDuplicate(t *testing.T) {
	g, members, _ := newTestGroup(t, "creatives")
	assert.Error(t, g.Add(members["creatives"]))
}

func TestGroup_NamesAndStatuses(t *testing.T) {
	g, _, _ := newTestGroup(t, "creatives", "telemetry", "geos")
	assert.Equal(t, []string{"creatives", "telemetry", "geos"}, g.Names())

	statuses := g.Statuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, "telemetry", statuses[1].Name)
	assert.False(t, statuses[1].HasData)

	m, ok := g.Get("geos")
	require.True(t, ok)
	assert.Equal(t, "geos", m.Name())
	_, ok = g.Get("nope")
	assert.False(t, ok)
}

func TestGroup_RefreshAll(t *testing.T) {
	g, members, _ := newTestGroup(t, "a", "b")
	require.NoError(t, g.Start(context.Background()))

	members["a"].Pause()
	waitClosed(t, g.RefreshAll())

	for name, c := range members {
		s := c.State()
		assert.Equal(t, uint64(1), s.Applied, name)
		assert.True(t, s.HasData, name)
	}
}

func TestGroup_PauseResumeAll(t *testing.T) {
	g, members, _ := newTestGroup(t, "a", "b")
	require.NoError(t, g.Start(context.Background()))

	g.PauseAll()
	for _, s := range g.Statuses() {
		assert.True(t, s.Paused, s.Name)
	}
	g.ResumeAll()
	for _, c := range members {
		assert.False(t, c.State().Paused)
	}
}

func TestGroup_BroadcastSkipsPausedMembers(t *testing.T) {
	g, members, fc := newTestGroup(t, "a", "b")
	require.NoError(t, g.Start(context.Background()))
	assert.Equal(t, epoch, g.LastBroadcast())

	members["a"].Pause()
	fc.Step(2 * time.Minute)

	require.Eventually(t, func() bool {
		return members["b"].State().Applied == 1
	}, waitFor, poll)
	assert.Never(t, func() bool {
		return members["a"].State().Started > 0
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, epoch.Add(2*time.Minute), g.LastBroadcast())
}

func TestGroup_StartTwice(t *testing.T) {
	g, _, _ := newTestGroup(t, "a")
	require.NoError(t, g.Start(context.Background()))
	assert.ErrorIs(t, g.Start(context.Background()), ErrAlreadyStarted)

	src := &counter{}
	late, err := New(Config[payload]{Name: "late", Fetch: src.fetch})
	require.NoError(t, err)
	assert.ErrorIs(t, g.Add(late), ErrAlreadyStarted)
}

func TestGroup_StopTearsDownMembers(t *testing.T) {
	g, members, _ := newTestGroup(t, "a", "b")
	require.NoError(t, g.Start(context.Background()))
	g.Stop()
	for _, c := range members {
		waitClosed(t, c.Done())
	}
}
