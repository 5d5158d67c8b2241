package clock

import (
	"testing"
	"time"
)

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now = %v, want %v", c.Now(), start)
	}

	c.Advance(1500 * time.Millisecond)
	if got := c.Now().Sub(start); got != 1500*time.Millisecond {
		t.Errorf("elapsed = %v, want 1.5s", got)
	}
}

func TestFakeClock_Ticker(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	tk := c.NewTicker(100 * time.Millisecond)
	defer tk.Stop()

	select {
	case <-tk.C:
		t.Fatal("ticker fired before advance")
	default:
	}

	c.Advance(99 * time.Millisecond)
	select {
	case <-tk.C:
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case <-tk.C:
	default:
		t.Fatal("ticker did not fire at deadline")
	}

	// Falling behind drops ticks instead of queueing them
	c.Advance(time.Second)
	<-tk.C
	select {
	case <-tk.C:
		t.Fatal("expected dropped ticks, got a second queued tick")
	default:
	}
}

func TestFakeClock_StoppedTicker(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	tk := c.NewTicker(10 * time.Millisecond)
	tk.Stop()

	c.Advance(time.Second)
	select {
	case <-tk.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestReal(t *testing.T) {
	c := Real()
	before := time.Now()
	if c.Now().Before(before) {
		t.Error("Real clock went backwards")
	}
	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C:
	case <-time.After(time.Second):
		t.Fatal("real ticker never fired")
	}
}
