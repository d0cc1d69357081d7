package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rate-desk-go/journal"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

type stubStore struct {
	ids      []string
	final    map[string]bool
	activity map[string]time.Time
	inserted []journal.Event
}

func (s *stubStore) SessionIDs() ([]string, error) { return s.ids, nil }

func (s *stubStore) HasFinalEvent(sid string) (bool, error) { return s.final[sid], nil }

func (s *stubStore) LastActivity(sid string) (time.Time, bool, error) {
	t, ok := s.activity[sid]
	return t, ok, nil
}

func (s *stubStore) InsertEvent(ev journal.Event) error {
	s.inserted = append(s.inserted, ev)
	s.final[ev.SessionID] = true
	return nil
}

func TestSweep_ExpiresStaleSessions(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := &stubStore{
		ids:   []string{"stale", "fresh", "done"},
		final: map[string]bool{"done": true},
		activity: map[string]time.Time{
			"stale": now.Add(-time.Hour),
			"fresh": now.Add(-time.Minute),
			"done":  now.Add(-2 * time.Hour),
		},
	}
	s := NewSweeper(store, nil, Config{Interval: time.Minute, TTL: 30 * time.Minute})
	s.SetClock(&fakeClock{t: now})

	n, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, store.inserted, 1)
	ev := store.inserted[0]
	assert.Equal(t, "abandoned", ev.Event)
	assert.Equal(t, "stale", ev.SessionID)
	assert.Equal(t, "watchdog", ev.Extra["source"])
	assert.Equal(t, now, ev.TS)
}

// 已判弃的会话下一轮不再重复补记。
func TestSweep_Idempotent(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := &stubStore{
		ids:      []string{"stale"},
		final:    map[string]bool{},
		activity: map[string]time.Time{"stale": now.Add(-time.Hour)},
	}
	s := NewSweeper(store, nil, Config{TTL: 30 * time.Minute})
	s.SetClock(&fakeClock{t: now})

	n, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, store.inserted, 1)

	st := s.GetStats()
	assert.Equal(t, int64(2), st.TotalSweeps)
	assert.Equal(t, int64(1), st.TotalExpired)
}

// 无任何足迹的会话不判弃。
func TestSweep_NoActivityNoExpire(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := &stubStore{
		ids:      []string{"ghost"},
		final:    map[string]bool{},
		activity: map[string]time.Time{},
	}
	s := NewSweeper(store, nil, Config{TTL: time.Minute})
	s.SetClock(&fakeClock{t: now})

	n, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweeper_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &stubStore{final: map[string]bool{}, activity: map[string]time.Time{}}
	s := NewSweeper(store, nil, Config{Interval: 10 * time.Millisecond, TTL: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.GreaterOrEqual(t, s.GetStats().TotalSweeps, int64(1))
}
