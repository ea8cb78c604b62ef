package sched

import (
	"testing"

	"defs"
)

// resetSched discards the package-level scheduler singleton so each test
// starts from an empty pair of runqueues and no running thread, the
// same "fresh singleton" pattern mem_test.go and ttbl_test.go use for
// their own package-level state.
func resetSched(t *testing.T) {
	t.Helper()
	global = newSched()
}

// TestIOQueueDrainsBeforeNormal checks that the IO runqueue is always
// fully drained before the NORMAL runqueue, even when an IO thread is
// made ready after NORMAL threads already are.
func TestIOQueueDrainsBeforeNormal(t *testing.T) {
	resetSched(t)
	var order []string
	mk := func(tid int, prio Priority, name string) *Thread_t {
		return MkThread(defs.Tid_t(tid), defs.Pid_t(tid), nil, prio, func() {
			order = append(order, name)
		})
	}
	normalA := mk(1, NORMAL, "normalA")
	ioB := mk(2, IO, "ioB")
	normalC := mk(3, NORMAL, "normalC")

	BeginTransaction()
	MakeReady(normalA)
	MakeReady(ioB)
	MakeReady(normalC)
	RunNextThread()
	EndTransaction()

	normalA.WaitFinished()
	ioB.WaitFinished()
	normalC.WaitFinished()

	want := []string{"ioB", "normalA", "normalC"}
	if len(order) != len(want) {
		t.Fatalf("execution order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

// TestMakeReadyFIFOWithinPriority checks the fairness rule: threads of
// equal priority run in the order they were made ready.
func TestMakeReadyFIFOWithinPriority(t *testing.T) {
	resetSched(t)
	var order []string
	a := MkThread(1, 1, nil, NORMAL, func() { order = append(order, "a") })
	b := MkThread(2, 2, nil, NORMAL, func() { order = append(order, "b") })

	BeginTransaction()
	MakeReady(a)
	MakeReady(b)
	RunNextThread()
	EndTransaction()

	a.WaitFinished()
	b.WaitFinished()

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("execution order = %v, want [a b]", order)
	}
}

// TestAddReadyFirstJumpsTheQueue checks head insertion: a thread added
// via AddReadyFirst runs before one already waiting at the tail of the
// same priority's runqueue.
func TestAddReadyFirstJumpsTheQueue(t *testing.T) {
	resetSched(t)
	var order []string
	waiting := MkThread(1, 1, nil, NORMAL, func() { order = append(order, "waiting") })
	jumper := MkThread(2, 2, nil, NORMAL, func() { order = append(order, "jumper") })

	BeginTransaction()
	MakeReady(waiting)
	AddReadyFirst(jumper)
	RunNextThread()
	EndTransaction()

	waiting.WaitFinished()
	jumper.WaitFinished()

	if len(order) != 2 || order[0] != "jumper" || order[1] != "waiting" {
		t.Fatalf("execution order = %v, want [jumper waiting]", order)
	}
}

// TestPriorityOverrideAndRevert exercises SetEffectivePriority and
// RevertPriority directly (ipc's priority inheritance is built on top
// of exactly these two calls).
func TestPriorityOverrideAndRevert(t *testing.T) {
	resetSched(t)
	th := MkThread(1, 1, nil, NORMAL, func() {})

	if th.EffectivePriority() != NORMAL || th.AssignedPriority() != NORMAL {
		t.Fatalf("fresh thread's priority = (%v, %v), want (NORMAL, NORMAL)", th.EffectivePriority(), th.AssignedPriority())
	}

	BeginTransaction()
	SetEffectivePriority(th, IO)
	EndTransaction()
	if th.EffectivePriority() != IO {
		t.Fatalf("EffectivePriority after override = %v, want IO", th.EffectivePriority())
	}
	if th.AssignedPriority() != NORMAL {
		t.Fatalf("AssignedPriority changed by an override, got %v", th.AssignedPriority())
	}

	BeginTransaction()
	RevertPriority(th)
	EndTransaction()
	if th.EffectivePriority() != NORMAL {
		t.Fatalf("EffectivePriority after revert = %v, want NORMAL", th.EffectivePriority())
	}
}

// TestJoinWaitsForTarget checks that Join blocks the calling thread
// until the target reaches FINISHED, resuming exactly once.
func TestJoinWaitsForTarget(t *testing.T) {
	resetSched(t)
	var order []string
	var a, b *Thread_t
	b = MkThread(2, 2, nil, NORMAL, func() {
		order = append(order, "b")
	})
	a = MkThread(1, 1, nil, NORMAL, func() {
		Join(a, b)
		order = append(order, "a-after-join")
	})

	BeginTransaction()
	MakeReady(a)
	MakeReady(b)
	RunNextThread()
	EndTransaction()

	a.WaitFinished()
	b.WaitFinished()

	if len(order) != 2 || order[0] != "b" || order[1] != "a-after-join" {
		t.Fatalf("join did not order execution as expected: %v", order)
	}
}

// TestNeedReschedFlag checks the need-resched flag contract: set from
// an interrupt-like context, consumed exactly once at syscall return.
func TestNeedReschedFlag(t *testing.T) {
	resetSched(t)
	if GetNeedResched() {
		t.Fatalf("fresh scheduler should not start with need-resched set")
	}
	SetNeedResched()
	if !GetNeedResched() {
		t.Fatalf("expected need-resched set after SetNeedResched")
	}
	if !ResetNeedResched() {
		t.Fatalf("ResetNeedResched should report the pending flag it clears")
	}
	if GetNeedResched() {
		t.Fatalf("need-resched should be clear after ResetNeedResched")
	}
}
