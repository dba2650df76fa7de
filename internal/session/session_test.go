package session

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ny = time.FixedZone("EST", -5*3600)

func nyCalendar(t *testing.T, holidays ...string) *Calendar {
	t.Helper()
	cal, err := NewCalendar(ny, "09:30", "16:00", holidays)
	require.NoError(t, err)
	return cal
}

func TestCalendar_IsOpen(t *testing.T) {
	cal := nyCalendar(t, "2024-07-04")

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2024, 7, 2, 9, 29, 0, 0, ny), false},
		{"at open", time.Date(2024, 7, 2, 9, 30, 0, 0, ny), true},
		{"midday", time.Date(2024, 7, 2, 12, 0, 0, 0, ny), true},
		{"at close", time.Date(2024, 7, 2, 16, 0, 0, 0, ny), false},
		{"saturday", time.Date(2024, 7, 6, 12, 0, 0, 0, ny), false},
		{"holiday", time.Date(2024, 7, 4, 12, 0, 0, 0, ny), false},
		{"utc input", time.Date(2024, 7, 2, 15, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.IsOpen(tt.at))
		})
	}
}

func TestCalendar_NextOpen(t *testing.T) {
	cal := nyCalendar(t, "2024-07-04", "2024-07-05")

	// before open on a trading day: today
	got := cal.NextOpen(time.Date(2024, 7, 2, 8, 0, 0, 0, ny))
	assert.Equal(t, time.Date(2024, 7, 2, 9, 30, 0, 0, ny), got.In(ny))

	// Wednesday after close, Thu/Fri holidays, weekend: Monday
	got = cal.NextOpen(time.Date(2024, 7, 3, 17, 0, 0, 0, ny))
	assert.Equal(t, time.Date(2024, 7, 8, 9, 30, 0, 0, ny), got.In(ny))
}

func TestCalendar_AllDays(t *testing.T) {
	cal, err := NewCalendar(time.UTC, "00:00", "23:59", nil)
	require.NoError(t, err)
	sat := time.Date(2024, 7, 6, 12, 0, 0, 0, time.UTC)
	assert.False(t, cal.IsOpen(sat))
	assert.True(t, cal.AllDays().IsOpen(sat))
}

func TestNewCalendar_Errors(t *testing.T) {
	_, err := NewCalendar(time.UTC, "9am", "16:00", nil)
	assert.Error(t, err)
	_, err = NewCalendar(time.UTC, "16:00", "09:30", nil)
	assert.Error(t, err)
	_, err = NewCalendar(time.UTC, "09:30", "16:00", []string{"07/04/2024"})
	assert.Error(t, err)
}

func TestCalendar_StatusString(t *testing.T) {
	cal := nyCalendar(t)
	assert.Equal(t, "Session open, closes in 1h30m", cal.StatusString(time.Date(2024, 7, 2, 14, 30, 0, 0, ny)))
	assert.Equal(t, "Session closed, opens Wed 09:30 (17h30m)", cal.StatusString(time.Date(2024, 7, 2, 16, 0, 0, 0, ny)))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func TestWatcher_FiresOnTransitions(t *testing.T) {
	cal := nyCalendar(t)
	clk := &fakeClock{now: time.Date(2024, 7, 2, 9, 0, 0, 0, ny)}

	opens := make(chan time.Time, 4)
	closes := make(chan time.Time, 4)
	w := NewWatcher(cal, 5*time.Millisecond)
	w.Now = clk.Now
	w.OnOpen = func(at time.Time) { opens <- at }
	w.OnClose = func(at time.Time) { closes <- at }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	clk.Set(time.Date(2024, 7, 2, 9, 30, 0, 0, ny))
	select {
	case at := <-opens:
		assert.Equal(t, 9, at.In(ny).Hour())
	case <-time.After(time.Second):
		t.Fatal("expected open transition")
	}

	clk.Set(time.Date(2024, 7, 2, 16, 0, 0, 0, ny))
	select {
	case <-closes:
	case <-time.After(time.Second):
		t.Fatal("expected close transition")
	}
	assert.Len(t, opens, 0)
}

func TestWatcher_StartsMidSession(t *testing.T) {
	cal := nyCalendar(t)
	clk := &fakeClock{now: time.Date(2024, 7, 2, 11, 0, 0, 0, ny)}

	opened := make(chan struct{}, 1)
	w := NewWatcher(cal, time.Hour)
	w.Now = clk.Now
	w.OnOpen = func(time.Time) { opened <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("expected open on startup")
	}
}

func TestCalendar_DSTTransitionDays(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cal, err := NewCalendar(loc, "09:30", "16:00", nil)
	require.NoError(t, err)
	cal.AllDays()

	// Clocks spring forward on 2026-03-08 and fall back on 2026-11-01.
	for _, day := range []time.Time{
		time.Date(2026, 3, 8, 12, 0, 0, 0, loc),
		time.Date(2026, 11, 1, 12, 0, 0, 0, loc),
	} {
		open := cal.TodayOpen(day)
		assert.Equal(t, 9, open.Hour(), day)
		assert.Equal(t, 30, open.Minute(), day)
		assert.Equal(t, 16, cal.TodayClose(day).Hour(), day)

		y, m, d := day.Date()
		assert.False(t, cal.IsOpen(time.Date(y, m, d, 9, 29, 0, 0, loc)), day)
		assert.True(t, cal.IsOpen(time.Date(y, m, d, 9, 45, 0, 0, loc)), day)
		assert.False(t, cal.IsOpen(time.Date(y, m, d, 16, 0, 0, 0, loc)), day)
	}

	next := cal.NextOpen(time.Date(2026, 3, 7, 17, 0, 0, 0, loc))
	assert.True(t, next.Equal(time.Date(2026, 3, 8, 9, 30, 0, 0, loc)), "next open %v", next)
}
