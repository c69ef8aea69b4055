package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/climarisk/internal/planner"
)

// recorder builds handlers that log their invocations.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(typ planner.TaskType, result any, err error) Handler {
	return Tagged(typ, func(ctx context.Context, run *Run, args planner.Args) (any, error) {
		r.mu.Lock()
		r.calls = append(r.calls, string(typ))
		r.mu.Unlock()
		return result, err
	})
}

func TestRunAllPassesOutputsForward(t *testing.T) {
	var seen any
	reg := NewRegistry(
		Tagged("A", func(ctx context.Context, run *Run, args planner.Args) (any, error) {
			return []string{"doc"}, nil
		}),
		Tagged("B", func(ctx context.Context, run *Run, args planner.Args) (any, error) {
			ref, err := args.RequireRef()
			if err != nil {
				return nil, err
			}
			v, err := run.ReadOutput(ref)
			if err != nil {
				return nil, err
			}
			seen = v
			return "done", nil
		}),
	)
	exec := New(reg)
	plan := []planner.SubTask{
		{Task: "A", Description: "first", Out: "x"},
		{Task: "B", Description: "second", Args: planner.Args{"in": "x"}, Out: "y"},
	}
	var descriptions []string
	for p, err := range exec.RunAll(context.Background(), plan) {
		if err != nil {
			t.Fatalf("RunAll: %v", err)
		}
		descriptions = append(descriptions, p.Description)
	}
	if fmt.Sprint(descriptions) != "[first second]" {
		t.Fatalf("unexpected progress %v", descriptions)
	}
	if fmt.Sprint(seen) != "[doc]" {
		t.Fatalf("B observed %v", seen)
	}
	if v, err := exec.ReadOutput("y"); err != nil || v != "done" {
		t.Fatalf("ReadOutput(y) = %v, %v", v, err)
	}
	if exec.Run().State() != Complete {
		t.Fatalf("state = %s", exec.Run().State())
	}
}

func TestResetIsolatesRuns(t *testing.T) {
	rec := &recorder{}
	exec := New(NewRegistry(rec.handler("A", 42, nil)))
	if err := exec.RunOne(context.Background(), planner.SubTask{Task: "A", Out: "x"}); err != nil {
		t.Fatalf("RunOne: %v", err)
	}
	if _, err := exec.ReadOutput("x"); err != nil {
		t.Fatalf("expected x before reset: %v", err)
	}
	if err := exec.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := exec.ReadOutput("x"); !errors.Is(err, ErrOutputNotFound) {
		t.Fatalf("expected ErrOutputNotFound after reset, got %v", err)
	}
	if exec.Run().State() != Idle {
		t.Fatalf("state after reset = %s", exec.Run().State())
	}
}

func TestRunOneStorage(t *testing.T) {
	var nilSlice []string
	cases := []struct {
		name   string
		result any
		stored bool
	}{
		{"value", "text", true},
		{"empty slice", []string{}, true},
		{"nil", nil, false},
		{"nil slice", nilSlice, false},
		{"empty string", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			exec := New(NewRegistry(rec.handler("A", tc.result, nil)))
			if err := exec.RunOne(context.Background(), planner.SubTask{Task: "A", Out: "x"}); err != nil {
				t.Fatalf("RunOne: %v", err)
			}
			if _, ok := exec.Run().Output("x"); ok != tc.stored {
				t.Fatalf("stored=%v want %v", ok, tc.stored)
			}
		})
	}
}

func TestRunOneOverwritesSlot(t *testing.T) {
	n := 0
	exec := New(NewRegistry(Tagged("A", func(ctx context.Context, run *Run, args planner.Args) (any, error) {
		n++
		return n, nil
	})))
	for i := 0; i < 2; i++ {
		if err := exec.RunOne(context.Background(), planner.SubTask{Task: "A", Out: "x"}); err != nil {
			t.Fatalf("RunOne: %v", err)
		}
	}
	if v, _ := exec.ReadOutput("x"); v != 2 {
		t.Fatalf("expected last write to win, got %v", v)
	}
}

func TestRunAllStopsOnUnknownTaskType(t *testing.T) {
	rec := &recorder{}
	exec := New(NewRegistry(rec.handler("A", "a", nil), rec.handler("C", "c", nil)))
	plan := []planner.SubTask{{Task: "A", Out: "a"}, {Task: "B"}, {Task: "C"}}
	var errs []error
	count := 0
	for _, err := range exec.RunAll(context.Background(), plan) {
		count++
		if err != nil {
			errs = append(errs, err)
		}
	}
	if count != 2 || len(errs) != 1 || !errors.Is(errs[0], ErrUnknownTaskType) {
		t.Fatalf("expected failure at task 1, got count=%d errs=%v", count, errs)
	}
	var te *TaskError
	if !errors.As(errs[0], &te) || te.Index != 1 {
		t.Fatalf("expected TaskError at index 1, got %v", errs[0])
	}
	if fmt.Sprint(rec.calls) != "[A]" {
		t.Fatalf("C must not run after a failure: %v", rec.calls)
	}
	if exec.Run().State() != Failed {
		t.Fatalf("state = %s", exec.Run().State())
	}
	if _, err := exec.ReadOutput("a"); err != nil {
		t.Fatalf("outputs stored before the failure are kept: %v", err)
	}
}

func TestRunAllPropagatesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{}
	exec := New(NewRegistry(rec.handler("A", nil, boom), rec.handler("B", "b", nil)))
	var got error
	for _, err := range exec.RunAll(context.Background(), []planner.SubTask{{Task: "A"}, {Task: "B"}}) {
		got = err
	}
	if !errors.Is(got, boom) {
		t.Fatalf("expected boom, got %v", got)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("B must not run: %v", rec.calls)
	}
}

func TestRunAllIsLazyAndSinglePass(t *testing.T) {
	rec := &recorder{}
	exec := New(NewRegistry(rec.handler("A", "a", nil), rec.handler("B", "b", nil)))
	seq := exec.RunAll(context.Background(), []planner.SubTask{{Task: "A"}, {Task: "B"}})
	if len(rec.calls) != 0 {
		t.Fatalf("nothing runs before the sequence is advanced")
	}
	for range seq {
		break
	}
	if fmt.Sprint(rec.calls) != "[A]" {
		t.Fatalf("abandoning after one step must leave B unexecuted: %v", rec.calls)
	}
	for _, err := range seq {
		if !errors.Is(err, ErrSequenceConsumed) {
			t.Fatalf("expected ErrSequenceConsumed, got %v", err)
		}
	}
}

func TestRunAllHonoursCancellation(t *testing.T) {
	rec := &recorder{}
	exec := New(NewRegistry(rec.handler("A", "a", nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range exec.RunAll(ctx, []planner.SubTask{{Task: "A"}}) {
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	}
	if len(rec.calls) != 0 {
		t.Fatalf("handler must not run on a cancelled context")
	}
}

func TestConcurrentRunAllSerialises(t *testing.T) {
	var active, peak int
	var mu sync.Mutex
	h := Tagged("A", func(ctx context.Context, run *Run, args planner.Args) (any, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return "a", nil
	})
	exec := New(NewRegistry(h))
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range exec.RunAll(context.Background(), []planner.SubTask{{Task: "A", Out: "x"}, {Task: "A", Out: "y"}}) {
			}
		}()
	}
	wg.Wait()
	if peak != 1 {
		t.Fatalf("expected serialised execution, peak concurrency %d", peak)
	}
}

func TestResetInsideRunAllFails(t *testing.T) {
	rec := &recorder{}
	exec := New(NewRegistry(rec.handler("A", "a", nil), rec.handler("B", "b", nil)))
	done := make(chan []error, 1)
	go func() {
		var errs []error
		for _, err := range exec.RunAll(context.Background(), []planner.SubTask{{Task: "A", Out: "x"}, {Task: "B", Out: "y"}}) {
			if err != nil {
				errs = append(errs, err)
			}
			errs = append(errs, exec.Reset(), exec.RunOne(context.Background(), planner.SubTask{Task: "A"}))
		}
		done <- errs
	}()
	select {
	case errs := <-done:
		if len(errs) != 4 {
			t.Fatalf("errors = %v", errs)
		}
		for _, err := range errs {
			if !errors.Is(err, ErrRunInProgress) {
				t.Fatalf("expected ErrRunInProgress, got %v", err)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Reset inside the range body blocked")
	}
	if _, err := exec.ReadOutput("y"); err != nil {
		t.Fatalf("outputs must survive the refused reset: %v", err)
	}
	if err := exec.Reset(); err != nil {
		t.Fatalf("Reset after the run: %v", err)
	}
}

func TestMetricsCallbacks(t *testing.T) {
	var durations, outcomes int
	var lastErr error
	exec := New(NewRegistry(Tagged("A", func(ctx context.Context, run *Run, args planner.Args) (any, error) {
		return nil, errors.New("x")
	})), WithMetrics(Metrics{
		Duration: func(ctx context.Context, task planner.SubTask, d time.Duration) { durations++ },
		Outcome: func(ctx context.Context, task planner.SubTask, err error) {
			outcomes++
			lastErr = err
		},
	}))
	_ = exec.RunOne(context.Background(), planner.SubTask{Task: "A"})
	_ = exec.RunOne(context.Background(), planner.SubTask{Task: "missing"})
	if durations != 1 || outcomes != 2 || !errors.Is(lastErr, ErrUnknownTaskType) {
		t.Fatalf("durations=%d outcomes=%d last=%v", durations, outcomes, lastErr)
	}
}

func TestRegisterPanicsOnUntaggedHandler(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewRegistry(Tagged("", func(ctx context.Context, run *Run, args planner.Args) (any, error) { return nil, nil }))
}

func TestRegistryTypes(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec.handler(planner.SearchDocs, nil, nil), rec.handler(planner.Synthesize, nil, nil), rec.handler(planner.SearchDocs, nil, nil))
	if fmt.Sprint(reg.Types()) != "[SEARCH_DOCS SYNTHESIZE]" {
		t.Fatalf("types = %v", reg.Types())
	}
	if !reg.Knows(planner.Synthesize) || reg.Knows(planner.DataViz) {
		t.Fatalf("Knows is wrong")
	}
}
