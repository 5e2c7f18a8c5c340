package biu

// FetchKind is the tag of the prefetch scheduler's state (spec §4.D). Several
// kinds carry a cycle counter, which TickPrefetcher decrements.
type FetchKind uint8

const (
	FetchIdle FetchKind = iota
	// FetchScheduled counts down the cycles remaining before a fetch may
	// transition onward, carrying Counter cycles left.
	FetchScheduled
	// FetchScheduleNext is a one-cycle placeholder for "ct==0 was
	// requested": it resolves to pending on the following tick.
	FetchScheduleNext
	// FetchDelayed models the 3-cycle fetch delay incurred scheduling a
	// prefetch mid code-fetch with a nearly-full queue.
	FetchDelayed
	// FetchDelayDone is a one-cycle placeholder mirroring FetchScheduleNext,
	// reached when a FetchDelayed counter expires.
	FetchDelayDone
	FetchInProgress
	// FetchAborting counts down the 2-cycle penalty for aborting a fetch
	// that had already reached T1.
	FetchAborting
	// FetchBlockedByEU marks a fetch the EU has claimed the bus out from
	// under before it reached T1.
	FetchBlockedByEU
)

// FetchState is the prefetch scheduler's current tagged state.
type FetchState struct {
	Kind    FetchKind
	Counter uint8
}

// Fetcher is Component D: the prefetch scheduler. It decides when the BIU
// may start a code fetch bus cycle and tracks the delay/abort penalties
// applied along the way.
type Fetcher struct {
	state     FetchState
	nextState FetchState
	suspended bool
}

// NewFetcher returns a scheduler in its idle resting state.
func NewFetcher() *Fetcher {
	return &Fetcher{}
}

// State returns the current tagged fetch state.
func (f *Fetcher) State() FetchState {
	return f.state
}

// Suspended reports whether fetching has been suspended (spec §4.D, SuspendFetch).
func (f *Fetcher) Suspended() bool {
	return f.suspended
}

// Suspend idles the scheduler and marks fetching suspended. Component F's
// SuspendFetch is responsible for first waiting out any in-flight code fetch.
func (f *Fetcher) Suspend() {
	f.suspended = true
	f.state = FetchState{Kind: FetchIdle}
}

// Resume clears a prior Suspend, as done implicitly by QueueFlush (spec §4.D).
func (f *Fetcher) Resume() {
	f.suspended = false
}

// HaltFetch marks fetching suspended for an imminent HALT. If called while
// the bus is still before T3 (Ti, Tinit, T1 or T2) there is time to cancel
// a pending decision outright; any later and a prefetch this cycle cannot
// be stopped.
func (f *Fetcher) HaltFetch(tc TCycle) {
	f.suspended = true
	switch tc {
	case Ti, Tinit, T1, T2:
		f.state = FetchState{Kind: FetchIdle}
	default:
		// Too late - a fetch already underway plays out.
	}
}

// delayApplies is the 8088's 3-cycle fetch-delay condition (spec §4.D): a
// prefetch scheduled while a code fetch is in flight and the queue is
// within one byte of full waits 3 extra cycles before starting.
func delayApplies(statusLatch BusStatus, queueLen int, queueOp QueueOp) bool {
	return statusLatch == CodeFetch && (queueLen == 3 || (queueLen == 2 && queueOp != QueueOpIdle))
}

// ScheduleFetch schedules a prefetch ct cycles out (ct==0 means "immediately
// after the in-flight bus transfer completes"), applying the 3-cycle delay
// when the queue is nearly full during an in-flight code fetch, and asks
// arb to transition to Prefetch (spec §4.D, §4.E).
func (f *Fetcher) ScheduleFetch(arb *Arbiter, ct uint8, statusLatch BusStatus, queueLen int, queueOp QueueOp) {
	if f.state.Kind == FetchScheduled {
		// Already scheduled; leave it alone.
		return
	}

	delayed := delayApplies(statusLatch, queueLen, queueOp)
	var next FetchState
	if delayed {
		next = FetchState{Kind: FetchDelayed, Counter: 3}
	} else {
		next = FetchState{Kind: FetchInProgress}
	}

	if ct == 0 {
		f.state = FetchState{Kind: FetchScheduleNext}
	} else {
		f.state = FetchState{Kind: FetchScheduled, Counter: ct}
	}
	f.nextState = next

	arb.ChangeState(ArbPrefetch)
}

// AbortFetch aborts a fetch that just reached T1 because the EU claimed the
// bus on the prior T3 or later. Caller (BusBegin) is responsible for the
// associated 2-cycle penalty and the bus-side rollback (t_cycle to T1,
// status latch cleared, ALE dropped).
func (f *Fetcher) AbortFetch(arb *Arbiter) {
	f.state = FetchState{Kind: FetchAborting, Counter: 2}
	arb.ChangeState(ArbEu)
}

// AbortFetchFull cancels a fetch the scheduler could not start because the
// queue has no room, returning the arbiter to Idle.
func (f *Fetcher) AbortFetchFull(arb *Arbiter) {
	arb.ChangeState(ArbIdle)
	f.state = FetchState{Kind: FetchIdle}
}

// MakeBiuDecision runs on T3 of every bus transfer (spec §4.G step 2): it is
// where the BIU decides whether to schedule the next prefetch or fall idle.
func (f *Fetcher) MakeBiuDecision(arb *Arbiter, queue *Queue, cpuType CPUType, statusLatch BusStatus, queueOp QueueOp) {
	if f.state.Kind == FetchBlockedByEU {
		arb.ChangeState(ArbEu)
		return
	}

	if f.suspended {
		arb.ChangeState(ArbIdle)
		return
	}

	if queue.HasRoom(cpuType) {
		f.ScheduleFetch(arb, 0, statusLatch, queue.Len(), queueOp)
	} else {
		arb.ChangeState(ArbIdle)
	}
}

// TickPrefetcher advances the scheduler's internal counters by one cycle
// (spec §4.D, §4.G step 4). ScheduleNext and DelayDone are resolved to
// nextState at the *start* of the following call, and the resolved state's
// own counter is then ticked in that same call. When the cycle driver's T3
// decision sets ScheduleNext, that following call is the same tick's step
// 4, so the placeholder is never visible between ticks.
func (f *Fetcher) TickPrefetcher() {
	if f.state.Kind == FetchScheduleNext || f.state.Kind == FetchDelayDone {
		f.state = f.nextState
	}

	switch f.state.Kind {
	case FetchDelayed:
		f.state.Counter--
		if f.state.Counter == 0 {
			f.state = FetchState{Kind: FetchDelayDone}
			f.nextState = FetchState{Kind: FetchInProgress}
		}
	case FetchScheduled:
		f.state.Counter--
		if f.state.Counter == 0 {
			f.state = FetchState{Kind: FetchScheduleNext}
		}
	case FetchAborting:
		f.state.Counter--
		if f.state.Counter == 0 {
			f.state = FetchState{Kind: FetchIdle}
		}
	}
}

// OnQueueRead reacts to the EU draining a queue byte down to 3 remaining
// while the BIU was sitting idle: that's the trigger to resume prefetching
// (spec §4.D, biu_fetch_on_queue_read).
func (f *Fetcher) OnQueueRead(arb *Arbiter, queueLen int, statusLatch BusStatus, queueOp QueueOp) {
	if arb.State() == ArbIdle && queueLen == 3 {
		arb.ChangeState(ArbPrefetch)
		f.ScheduleFetch(arb, 3, statusLatch, queueLen, queueOp)
	}
}
