package fsm

import (
	"testing"
)

type testState string

func (s testState) Key() string {
	return string(s)
}

const (
	stateA = testState("a")
	stateB = testState("b")
	stateC = testState("c")
)

type testContext struct {
	triggered    []string
	notTriggered []string
}

func recordingTransition(from, to testState, label string, guard func(int, *testContext) bool) Transition[int, *testContext] {
	return Transition[int, *testContext]{
		From:        from,
		To:          to,
		IsTriggered: guard,
		OnTriggered: func(_ int, ctx *testContext) {
			ctx.triggered = append(ctx.triggered, label)
		},
		OnNotTriggered: func(_ int, ctx *testContext) {
			ctx.notTriggered = append(ctx.notTriggered, label)
		},
	}
}

func TestFirstMatchWins(t *testing.T) {
	ctx := &testContext{}
	m, err := New(stateA, ctx, []Transition[int, *testContext]{
		recordingTransition(stateA, stateB, "first", func(v int, _ *testContext) bool { return v > 0 }),
		recordingTransition(stateA, stateC, "second", func(v int, _ *testContext) bool { return v > 0 }),
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	next := m.Process(1)
	if next.Key() != "b" {
		t.Fatalf("expected first matching transition to win, got state %s", next.Key())
	}
	if len(ctx.triggered) != 1 || ctx.triggered[0] != "first" {
		t.Fatalf("unexpected triggered hooks: %v", ctx.triggered)
	}

	// The second transition must not have been evaluated at all
	if len(ctx.notTriggered) != 0 {
		t.Fatalf("unexpected not-triggered hooks: %v", ctx.notTriggered)
	}
}

func TestNoMatchInvokesAllNotTriggeredHooks(t *testing.T) {
	ctx := &testContext{}
	m, err := New(stateA, ctx, []Transition[int, *testContext]{
		recordingTransition(stateA, stateB, "first", func(v int, _ *testContext) bool { return false }),
		recordingTransition(stateA, stateC, "second", func(v int, _ *testContext) bool { return false }),
		recordingTransition(stateB, stateC, "other-state", func(v int, _ *testContext) bool { return true }),
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	next := m.Process(1)
	if next.Key() != "a" {
		t.Fatalf("expected state to remain unchanged, got %s", next.Key())
	}
	if len(ctx.notTriggered) != 2 || ctx.notTriggered[0] != "first" || ctx.notTriggered[1] != "second" {
		t.Fatalf("expected not-triggered hooks for all checked transitions in order, got %v", ctx.notTriggered)
	}
	if len(ctx.triggered) != 0 {
		t.Fatalf("unexpected triggered hooks: %v", ctx.triggered)
	}
}

func TestSelfTransitionRejected(t *testing.T) {
	_, err := New(stateA, &testContext{}, []Transition[int, *testContext]{
		recordingTransition(stateA, stateA, "self", func(int, *testContext) bool { return true }),
	})
	if err == nil {
		t.Fatalf("registration of self-transition was unexpectedly successful")
	}
}

func TestMissingGuardRejected(t *testing.T) {
	_, err := New(stateA, &testContext{}, []Transition[int, *testContext]{
		{From: stateA, To: stateB},
	})
	if err == nil {
		t.Fatalf("registration of guard-less transition was unexpectedly successful")
	}
}

func TestStatesSortedAndDeduplicated(t *testing.T) {
	m, err := New(stateA, &testContext{}, []Transition[int, *testContext]{
		recordingTransition(stateC, stateA, "1", func(int, *testContext) bool { return false }),
		recordingTransition(stateA, stateB, "2", func(int, *testContext) bool { return false }),
		recordingTransition(stateB, stateA, "3", func(int, *testContext) bool { return false }),
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	states := m.States()
	if len(states) != 3 {
		t.Fatalf("expected 3 distinct states, got %d", len(states))
	}
	for i, want := range []string{"a", "b", "c"} {
		if states[i].Key() != want {
			t.Fatalf("expected state %s at position %d, got %s", want, i, states[i].Key())
		}
	}
}

func TestContextSharedAcrossTransitions(t *testing.T) {
	ctx := &testContext{}
	m, err := New(stateA, ctx, []Transition[int, *testContext]{
		recordingTransition(stateA, stateB, "a->b", func(v int, _ *testContext) bool { return v == 1 }),
		recordingTransition(stateB, stateA, "b->a", func(v int, _ *testContext) bool { return v == 2 }),
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	m.Process(1)
	m.Process(2)
	if m.State().Key() != "a" {
		t.Fatalf("expected to be back in state a, got %s", m.State().Key())
	}
	if len(ctx.triggered) != 2 {
		t.Fatalf("expected both transitions to have fired, got %v", ctx.triggered)
	}
	if m.Context() != ctx {
		t.Fatalf("context instance was not preserved")
	}
}
