package polling

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/clock"
)

var epoch = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type tickLog struct {
	mu    sync.Mutex
	ticks []Tick
}

func (l *tickLog) action(t Tick) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks = append(l.ticks, t)
}

func (l *tickLog) count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.ticks {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

func TestEnsureFiresImmediatelyThenEveryInterval(t *testing.T) {
	clk := clock.Fake(epoch)
	c := NewController(clk, nil)
	log := &tickLog{}

	if !c.Ensure(Status, 15*time.Second, log.action) {
		t.Fatal("Ensure should start the loop")
	}
	if log.count(Status) != 1 {
		t.Fatalf("first tick not immediate: %d ticks", log.count(Status))
	}
	clk.Advance(45 * time.Second)
	if got := log.count(Status); got != 4 {
		t.Errorf("ticks after 45s = %d, want 4", got)
	}
	for i, tick := range log.ticks {
		if tick.Seq != i+1 {
			t.Errorf("tick %d has Seq %d", i, tick.Seq)
		}
		if want := epoch.Add(time.Duration(i) * 15 * time.Second); !tick.At.Equal(want) {
			t.Errorf("tick %d at %v, want %v", i, tick.At, want)
		}
	}
	t.Logf("✓ Loop ticks at 0s, 15s, 30s, 45s")
}

func TestEnsureIsIdempotent(t *testing.T) {
	clk := clock.Fake(epoch)
	c := NewController(clk, nil)
	first, second := &tickLog{}, &tickLog{}

	c.Ensure(AllLatest, 20*time.Second, first.action)
	if c.Ensure(AllLatest, 20*time.Second, second.action) {
		t.Error("second Ensure of the same kind should be a no-op")
	}
	clk.Advance(40 * time.Second)

	if first.count(AllLatest) != 3 {
		t.Errorf("first loop ticks = %d, want 3", first.count(AllLatest))
	}
	if second.count(AllLatest) != 0 {
		t.Errorf("second action ran %d times", second.count(AllLatest))
	}
	if clk.PendingCount() != 1 {
		t.Errorf("pending timers = %d, want exactly one loop", clk.PendingCount())
	}
	t.Logf("✓ Double Ensure keeps a single loop")
}

func TestCancelStopsFutureTicks(t *testing.T) {
	clk := clock.Fake(epoch)
	c := NewController(clk, nil)
	log := &tickLog{}

	c.Ensure(SingleLive, 5*time.Second, log.action)
	clk.Advance(10 * time.Second)
	c.Cancel(SingleLive)
	c.Cancel(SingleLive)
	clk.Advance(time.Minute)

	if got := log.count(SingleLive); got != 3 {
		t.Errorf("ticks = %d, want 3", got)
	}
	if len(c.Running()) != 0 {
		t.Errorf("Running = %v", c.Running())
	}
	if log.ticks[0].Ctx.Err() == nil {
		t.Error("tick context should be cancelled with the loop")
	}
}

func TestCancelAllAndGenerations(t *testing.T) {
	clk := clock.Fake(epoch)
	c := NewController(clk, nil)
	log := &tickLog{}

	c.Ensure(Status, 15*time.Second, log.action)
	c.Ensure(AllLatest, 20*time.Second, log.action)
	if got := c.Running(); !reflect.DeepEqual(got, []Kind{AllLatest, Status}) {
		t.Fatalf("Running = %v", got)
	}
	oldStatus := log.ticks[0]
	if !c.IsCurrent(Status, oldStatus.Generation) {
		t.Fatal("running loop should be current")
	}

	c.CancelAll()
	if len(c.Running()) != 0 || clk.PendingCount() != 0 {
		t.Fatalf("after CancelAll: running=%v pending=%d", c.Running(), clk.PendingCount())
	}
	if c.IsCurrent(Status, oldStatus.Generation) {
		t.Error("cancelled loop must not be current")
	}

	c.Ensure(Status, 15*time.Second, log.action)
	restarted := log.ticks[len(log.ticks)-1]
	if restarted.Generation == oldStatus.Generation {
		t.Error("restarted loop must get a new generation")
	}
	if c.IsCurrent(Status, oldStatus.Generation) || !c.IsCurrent(Status, restarted.Generation) {
		t.Error("only the restarted generation is current")
	}
	t.Logf("✓ Generations distinguish restarted loops")
}

func TestEnsureFromInsideAction(t *testing.T) {
	clk := clock.Fake(epoch)
	c := NewController(clk, nil)
	log := &tickLog{}

	c.Ensure(Status, 15*time.Second, func(tick Tick) {
		if tick.Seq == 2 {
			c.Cancel(Status)
			c.Ensure(AllLatest, 20*time.Second, log.action)
		}
	})
	clk.Advance(15 * time.Second)

	if got := c.Running(); !reflect.DeepEqual(got, []Kind{AllLatest}) {
		t.Errorf("Running = %v", got)
	}
	if log.count(AllLatest) != 1 {
		t.Errorf("AllLatest ticks = %d", log.count(AllLatest))
	}
}
