package coordinator

import (
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	c := New(3, nil)

	if c.ShouldStop() {
		t.Error("new coordinator should not be stopped")
	}
	if got := c.Workers(); got != 3 {
		t.Errorf("Workers() = %d, want 3", got)
	}
	for id, s := range c.Statuses() {
		if s.State != Running {
			t.Errorf("worker %d state = %v, want running", id, s.State)
		}
	}
}

func TestSignalStop(t *testing.T) {
	c := New(2, nil)
	c.SignalStop(0)

	if !c.ShouldStop() {
		t.Error("ShouldStop() = false after SignalStop")
	}
	if !c.IsCompleted(0) {
		t.Error("worker 0 should be completed")
	}
	if c.IsCompleted(1) {
		t.Error("worker 1 should still be running")
	}
	if got := c.Status(0).Result; got != StopConfirmedResult() {
		t.Errorf("worker 0 result = %v, want stop confirmed", got)
	}
}

func TestShouldStop_Monotonic(t *testing.T) {
	c := New(4, nil)
	c.SignalStop(2)

	c.MarkIterationStart(2)
	c.MarkCompleted(2, ErrorResult("later failure"))
	c.MarkIterationComplete(1)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.ShouldStop() {
				t.Error("ShouldStop() = false after SignalStop")
			}
		}()
	}
	wg.Wait()
}

func TestIterationLifecycle(t *testing.T) {
	c := New(1, nil)

	steps := []struct {
		name string
		do   func()
		want State
	}{
		{"initial", func() {}, Running},
		{"iteration complete", func() { c.MarkIterationComplete(0) }, FinishingIteration},
		{"complete again is a no-op", func() { c.MarkIterationComplete(0) }, FinishingIteration},
		{"new iteration", func() { c.MarkIterationStart(0) }, Running},
		{"iteration complete", func() { c.MarkIterationComplete(0) }, FinishingIteration},
		{"completed", func() { c.MarkCompleted(0, ShutdownResult()) }, Completed},
		{"start after completed is ignored", func() { c.MarkIterationStart(0) }, Completed},
		{"finish after completed is ignored", func() { c.MarkIterationComplete(0) }, Completed},
	}

	for _, step := range steps {
		step.do()
		if got := c.Status(0).State; got != step.want {
			t.Fatalf("%s: state = %v, want %v", step.name, got, step.want)
		}
	}
}

func TestMarkCompleted(t *testing.T) {
	c := New(2, nil)
	c.MarkCompleted(0, ShutdownResult())

	got := c.Status(0)
	want := Status{State: Completed, Result: ShutdownResult()}
	if got != want {
		t.Errorf("Status(0) = %v, want %v", got, want)
	}
	if c.AllCompleted() {
		t.Error("AllCompleted() = true with worker 1 running")
	}

	c.MarkCompleted(1, ErrorResult("boom"))
	if !c.AllCompleted() {
		t.Error("AllCompleted() = false after both completed")
	}
	if !c.Status(1).Result.IsError() {
		t.Error("worker 1 result should be an error")
	}
}

func TestUnknownWorkerIgnored(t *testing.T) {
	c := New(1, nil)
	c.MarkCompleted(5, ShutdownResult())
	c.MarkIterationComplete(-1)

	if got := c.Status(5); got != (Status{}) {
		t.Errorf("Status(5) = %v, want zero", got)
	}
	if c.IsCompleted(0) {
		t.Error("worker 0 should be unaffected")
	}
}

func TestWaitForAllComplete(t *testing.T) {
	c := New(2, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.MarkCompleted(0, StopConfirmedResult())
		c.MarkCompleted(1, ShutdownResult())
	}()

	if !c.WaitForAllComplete(time.Second) {
		t.Error("WaitForAllComplete() = false, want true")
	}
}

func TestWaitForAllComplete_FinishingIterationCounts(t *testing.T) {
	c := New(2, nil)
	c.SignalStop(0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.MarkIterationComplete(1)
	}()

	if !c.WaitForAllComplete(time.Second) {
		t.Error("WaitForAllComplete() = false, want true")
	}
}

func TestWaitForAllComplete_Timeout(t *testing.T) {
	c := New(2, nil)
	c.MarkCompleted(0, StopConfirmedResult())

	start := time.Now()
	if c.WaitForAllComplete(50 * time.Millisecond) {
		t.Error("WaitForAllComplete() = true with a running worker")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
}

func TestWaitForAllComplete_AlreadySettled(t *testing.T) {
	c := New(0, nil)
	if !c.WaitForAllComplete(0) {
		t.Error("empty coordinator should be settled")
	}
}

func TestChanged(t *testing.T) {
	c := New(1, nil)
	ch := c.Changed()

	select {
	case <-ch:
		t.Fatal("Changed() closed before any update")
	default:
	}

	c.MarkIterationStart(0)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Changed() not closed after MarkIterationStart")
	}
}

func TestConcurrentWorkers(t *testing.T) {
	const workers = 16
	c := New(workers, nil)

	var wg sync.WaitGroup
	for id := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				c.MarkIterationStart(id)
				c.MarkIterationComplete(id)
			}
			if id == 3 {
				c.SignalStop(id)
				return
			}
			c.MarkCompleted(id, ShutdownResult())
		}()
	}

	if !c.WaitForAllComplete(5 * time.Second) {
		t.Fatal("workers did not settle")
	}
	wg.Wait()

	if !c.AllCompleted() {
		t.Error("AllCompleted() = false after every worker finished")
	}
	if !c.ShouldStop() {
		t.Error("ShouldStop() = false")
	}
	if got := c.Status(3).Result.Kind; got != StopConfirmed {
		t.Errorf("worker 3 result = %v, want stop_confirmed", got)
	}
}

func TestResultString(t *testing.T) {
	tests := []struct {
		result Result
		want   string
	}{
		{StopConfirmedResult(), "stop confirmed"},
		{ShutdownResult(), "shutdown"},
		{ErrorResult("lock timeout"), "error: lock timeout"},
	}
	for _, tt := range tests {
		if got := tt.result.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestResultKind(t *testing.T) {
	tests := []struct {
		result Result
		want   ResultKind
		str    string
	}{
		{StopConfirmedResult(), StopConfirmed, "stop_confirmed"},
		{ShutdownResult(), ShutdownRequested, "shutdown"},
		{ErrorResult("boom"), Failed, "error"},
	}
	for _, tt := range tests {
		if tt.result.Kind != tt.want {
			t.Errorf("Kind = %v, want %v", tt.result.Kind, tt.want)
		}
		if got := tt.result.Kind.String(); got != tt.str {
			t.Errorf("Kind.String() = %q, want %q", got, tt.str)
		}
	}

	// The interrupt flag lives alongside the result kinds.
	s := NewShutdown()
	s.Set()
	if !s.IsSet() || ShutdownResult().IsError() {
		t.Error("shutdown flag and shutdown result disagree")
	}
}

func TestStatusString(t *testing.T) {
	if got := (Status{State: FinishingIteration}).String(); got != "finishing_iteration" {
		t.Errorf("got %q", got)
	}
	if got := (Status{State: Completed, Result: ShutdownResult()}).String(); got != "completed (shutdown)" {
		t.Errorf("got %q", got)
	}
}

func TestShutdown(t *testing.T) {
	s := NewShutdown()
	if s.IsSet() {
		t.Fatal("new Shutdown is set")
	}

	s.Set()
	s.Set()

	if !s.IsSet() {
		t.Error("IsSet() = false after Set")
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done() not closed after Set")
	}
}

func TestShutdown_Nil(t *testing.T) {
	var s *Shutdown
	if s.IsSet() {
		t.Error("nil Shutdown reports set")
	}
	if s.Done() != nil {
		t.Error("nil Shutdown Done() should be nil")
	}
}
