// Package sched implements the thread control block, the two-queue
// ready-list scheduler, scheduling transactions, priority inheritance,
// and the context-switch primitive.
//
// "The current thread" is a single package-level pointer read and
// written only while the scheduler lock is held, rather than derived
// from a stack-pointer mask; Go gives no raw stack pointer to mask.
//
// The context switch works the way xv6's forkret/swtch pair does,
// adapted to Go: there is no raw register file or kernel stack to save
// and restore by hand, so each Thread_t's body runs on its own
// goroutine, and "switching to" a thread means waking its goroutine
// and parking the caller's until its turn comes back around, both
// gated by one mutex+condvar standing in for the transaction lock. A
// freshly created thread's goroutine begins by acquiring and releasing
// that lock before running its body, mirroring forkret's first act of
// releasing the lock that the scheduler bringing the thread up is
// holding on the new thread's behalf.
package sched

import (
	"sync"
	"time"

	"accnt"
	"defs"
	"sys"
	"ttbl"
)

/// State is a thread's scheduling status.
type State int

const (
	SEND State = iota
	REPLY
	RECEIVE
	SEM
	READY
	RUNNING
	JOINING
	FINISHED
)

/// Priority is a thread's scheduling class. IO outranks NORMAL; the
/// scheduler always drains the IO runqueue before the NORMAL one.
type Priority int

const (
	NORMAL Priority = iota
	IO
)

const registerCount = 16

/// Thread_t is one schedulable unit. A thread's assigned priority is
/// fixed at creation; its effective priority is temporarily raised by
/// priority inheritance during a synchronous send and reverted on
/// reply.
type Thread_t struct {
	Tid  defs.Tid_t
	Pid  defs.Pid_t
	Acct accnt.Accnt_t

	state             State
	assignedPriority  Priority
	effectivePriority Priority

	// kRegs/uRegs/savedPC hold the saved kernel and user register
	// files; savedirq holds the interrupt-enable state in effect when
	// the thread was switched out. Nothing reads the register files
	// back: the real save/restore is the goroutine park/resume
	// described in the package doc.
	kRegs    [registerCount]uint32
	uRegs    [registerCount]uint32
	savedPC  uintptr
	savedirq bool

	tt *ttbl.TranslationTable_t

	// scheduledAt is when this thread most recently became RUNNING,
	// consulted by switchTo to fold elapsed time into Acct on the way
	// out so a reaping parent sees real accumulated usage.
	scheduledAt time.Time

	body     func()
	firstRun bool

	joiner   *Thread_t
	joinerCh chan struct{}

	next *Thread_t
}

/// State reports the thread's current scheduling state.
func (t *Thread_t) State() State { return t.state }

/// EffectivePriority reports the thread's current (possibly inherited)
/// priority.
func (t *Thread_t) EffectivePriority() Priority { return t.effectivePriority }

/// AssignedPriority reports the thread's fixed, natural priority.
func (t *Thread_t) AssignedPriority() Priority { return t.assignedPriority }

/// Translation returns the thread's user translation table, for context
/// switch to install via ttbl.SetUserTable.
func (t *Thread_t) Translation() *ttbl.TranslationTable_t { return t.tt }

type runqueue struct {
	head, tail *Thread_t
}

func (q *runqueue) pushTail(t *Thread_t) {
	t.next = nil
	if q.tail == nil {
		q.head, q.tail = t, t
		return
	}
	q.tail.next = t
	q.tail = t
}

func (q *runqueue) pushHead(t *Thread_t) {
	t.next = q.head
	if q.head == nil {
		q.tail = t
	}
	q.head = t
}

func (q *runqueue) pop() *Thread_t {
	if q.head == nil {
		return nil
	}
	t := q.head
	q.head = t.next
	if q.head == nil {
		q.tail = nil
	}
	t.next = nil
	return t
}

// sched_t is the single scheduler-wide singleton: two runqueues, the
// running thread, and the need-resched flag, all guarded by one
// mutex+condvar pair standing in for the transaction lock.
type sched_t struct {
	mu          sync.Mutex
	cond        *sync.Cond
	queues      [2]runqueue // indexed by Priority
	current     *Thread_t
	needResched bool
}

func newSched() *sched_t {
	s := &sched_t{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

var global = newSched()

/// Current returns the running thread.
func Current() *Thread_t {
	return global.current
}

/// BeginTransaction acquires the scheduler lock. Must not be called
/// from interrupt context or with any other spinlock held.
func BeginTransaction() {
	global.mu.Lock()
}

/// EndTransaction releases the scheduler lock.
func EndTransaction() {
	global.mu.Unlock()
}

/// BeginTransactionDuringIrq is BeginTransaction's counterpart for
/// interrupt-handler call sites. Interrupt masking itself is tracked
/// separately by sys.IrqDisable/IrqEnabled; both entry points acquire
/// the same underlying lock.
func BeginTransactionDuringIrq() {
	global.mu.Lock()
}

/// EndTransactionEndingIrq releases the scheduler lock from an
/// interrupt-return path; the caller restores interrupts itself
/// afterward.
func EndTransactionEndingIrq() {
	global.mu.Unlock()
}

/// MkThread creates a new thread in state READY with the given
/// assigned priority, owning tt as its user translation table and body
/// as its entry point. The thread is not enqueued; call MakeReady.
func MkThread(tid defs.Tid_t, pid defs.Pid_t, tt *ttbl.TranslationTable_t, prio Priority, body func()) *Thread_t {
	return &Thread_t{
		Tid:               tid,
		Pid:               pid,
		tt:                tt,
		body:              body,
		state:             READY,
		assignedPriority:  prio,
		effectivePriority: prio,
		firstRun:          true,
		joinerCh:          make(chan struct{}),
	}
}

/// MakeReady inserts t at the tail of its effective-priority runqueue
/// for fairness. Must be called under a scheduling transaction.
func MakeReady(t *Thread_t) {
	t.state = READY
	global.queues[t.effectivePriority].pushTail(t)
}

/// AddReadyFirst inserts t at the head of its effective-priority
/// runqueue, for a specific handoff. Must be called under a scheduling
/// transaction.
func AddReadyFirst(t *Thread_t) {
	t.state = READY
	global.queues[t.effectivePriority].pushHead(t)
}

/// MakeUnready marks t with a non-runnable state. The caller must
/// already have removed t from any runqueue (ordinarily t is the
/// currently running thread, which is never itself on a runqueue).
/// Must be called under a scheduling transaction.
func MakeUnready(t *Thread_t, state State) {
	t.state = state
}

/// DequeueReady returns the head of the IO runqueue if nonempty, else
/// the head of the NORMAL runqueue, else nil. Must be called under a
/// scheduling transaction.
func DequeueReady() *Thread_t {
	if t := global.queues[IO].pop(); t != nil {
		return t
	}
	return global.queues[NORMAL].pop()
}

/// SetNeedResched marks that a reschedule should happen at the next
/// syscall return. Safe to call from interrupt handlers.
func SetNeedResched() {
	global.needResched = true
}

/// GetNeedResched reports whether a reschedule is pending, without
/// clearing it.
func GetNeedResched() bool {
	return global.needResched
}

/// ResetNeedResched clears and returns the pending reschedule flag,
/// consumed once per syscall return.
func ResetNeedResched() bool {
	v := global.needResched
	global.needResched = false
	return v
}

/// SetEffectivePriority installs an artificially raised priority on t
/// for priority inheritance. Must be called under a scheduling
/// transaction.
func SetEffectivePriority(t *Thread_t, p Priority) {
	t.effectivePriority = p
}

/// RevertPriority restores t's effective priority to its assigned
/// value, releasing any inherited priority; called on reply.
func RevertPriority(t *Thread_t) {
	t.effectivePriority = t.assignedPriority
}

/// RunNextThread selects the next runnable thread via DequeueReady and
/// switches to it, parking the calling thread until it is rescheduled.
/// If no thread is ready, the current thread keeps running; the
/// scheduler never idles into nothing. Must be called under a
/// scheduling transaction; returns with the transaction still held.
func RunNextThread() {
	self := global.current
	next := DequeueReady()
	if next == nil {
		// A thread that has just Finished needs nowhere to fall back
		// to; its goroutine is on its way out. Any other non-RUNNING
		// self means a caller suspended itself without queuing a
		// successor, which would idle the system into nothing.
		if self != nil && self.state != RUNNING && self.state != FINISHED {
			panic("sched: no ready thread and no running thread to fall back to")
		}
		return
	}
	switchTo(next)
	// A FINISHED self is never rescheduled, so waiting for it to
	// become current again would park the caller forever; its
	// goroutine (or the boot goroutine observing a finished current)
	// just moves on.
	if self != nil && self.state != FINISHED {
		for global.current != self {
			global.cond.Wait()
		}
	}
}

// switchTo installs next as the running thread, saving the outgoing
// thread's interrupt-enable state and installing the incoming user
// translation table, then wakes next's goroutine, spawning one if this
// is its first run. It also folds the outgoing thread's elapsed
// running time into its Acct; with no separate kernel/user mode split
// to observe, the whole scheduled interval is charged as user time.
func switchTo(next *Thread_t) {
	prev := global.current
	now := time.Now()
	if prev != nil {
		prev.savedirq = sys.IrqEnabled()
		prev.Acct.Utadd(int(now.Sub(prev.scheduledAt).Nanoseconds()))
	}
	global.current = next
	next.state = RUNNING
	next.scheduledAt = now
	ttbl.SetUserTable(next.tt)

	if next.firstRun {
		next.firstRun = false
		go runFirst(next)
	}
	global.cond.Broadcast()
}

// runFirst is a new thread's entry trampoline. It first acquires and
// releases the transaction lock, standing in for the lock release a
// resumed thread's own RunNextThread call would otherwise perform,
// then runs the thread body, and on return marks
// the thread Finished and schedules someone else. Finished threads are
// never rescheduled, so the final RunNextThread call returns without
// waiting and the goroutine exits.
func runFirst(t *Thread_t) {
	global.mu.Lock()
	global.mu.Unlock()
	if t.body != nil {
		t.body()
	}
	BeginTransaction()
	Finish(t)
	RunNextThread()
	EndTransaction()
}

/// Finish marks t Finished and wakes a waiting joiner, if any. Must be
/// called under a scheduling transaction.
func Finish(t *Thread_t) {
	t.state = FINISHED
	close(t.joinerCh)
	if t.joiner != nil {
		MakeReady(t.joiner)
	}
}

/// Join blocks the calling thread self until t reaches FINISHED, waking
/// exactly once when it does. Must be called outside a scheduling
/// transaction; Join manages its own.
func Join(self, t *Thread_t) {
	BeginTransaction()
	if t.state == FINISHED {
		EndTransaction()
		return
	}
	t.joiner = self
	MakeUnready(self, JOINING)
	RunNextThread()
	EndTransaction()
}

/// WaitFinished blocks the calling goroutine until t reaches FINISHED.
/// Unlike Join, the caller need not itself be a scheduled Thread_t:
/// this is the boot/test harness's way of waiting on a kernel thread
/// from outside the thread system entirely, since there is no idle
/// kernel thread for cmd/kernel's boot goroutine to be.
func (t *Thread_t) WaitFinished() {
	<-t.joinerCh
}
