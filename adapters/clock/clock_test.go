package clock_test

import (
	"testing"
	"time"

	"github.com/courseops/mimeo/adapters/clock"
)

func TestReal_Now(t *testing.T) {
	c := clock.Real{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
}

func TestFake_Now_Stable(t *testing.T) {
	release := time.Date(2024, 9, 4, 23, 59, 0, 0, time.UTC)
	c := clock.NewFake(release)

	// Frozen clocks never drift between calls.
	for i := 0; i < 10; i++ {
		got := c.Now()
		if !got.Equal(release) {
			t.Errorf("call %d: Now() = %v, want %v", i, got, release)
		}
	}
}

func TestFake_Set(t *testing.T) {
	c := clock.NewFake(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC))

	afterRelease := time.Date(2024, 9, 5, 0, 0, 0, 0, time.UTC)
	c.Set(afterRelease)

	got := c.Now()
	if !got.Equal(afterRelease) {
		t.Errorf("Now() = %v, want %v", got, afterRelease)
	}
}

func TestFake_Advance(t *testing.T) {
	initial := time.Date(2024, 9, 4, 23, 0, 0, 0, time.UTC)
	c := clock.NewFake(initial)

	c.Advance(time.Hour)
	c.Advance(-30 * time.Minute)

	expected := initial.Add(30 * time.Minute)
	got := c.Now()

	if !got.Equal(expected) {
		t.Errorf("Now() = %v, want %v", got, expected)
	}
}

func TestFake_ConcurrentAccess(t *testing.T) {
	c := clock.NewFake(time.Now())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = c.Now()
				c.Advance(time.Second)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
	// Test passes if no race conditions
}
