package biu

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fetcher", func() {
	var (
		f   *Fetcher
		arb *Arbiter
		q   *Queue
	)

	BeforeEach(func() {
		f = NewFetcher()
		arb = NewArbiter()
		q = NewQueue(Intel8088)
	})

	It("starts Idle and not suspended", func() {
		Expect(f.State().Kind).To(Equal(FetchIdle))
		Expect(f.Suspended()).To(BeFalse())
	})

	Describe("delayApplies", func() {
		It("applies with 3 bytes queued mid code-fetch", func() {
			Expect(delayApplies(CodeFetch, 3, QueueOpIdle)).To(BeTrue())
		})

		It("applies with 2 bytes queued and a queue op pending", func() {
			Expect(delayApplies(CodeFetch, 2, QueueOpFirst)).To(BeTrue())
		})

		It("does not apply with 2 bytes queued and no queue op", func() {
			Expect(delayApplies(CodeFetch, 2, QueueOpIdle)).To(BeFalse())
		})

		It("does not apply outside a code fetch", func() {
			Expect(delayApplies(MemRead, 3, QueueOpIdle)).To(BeFalse())
		})
	})

	Describe("ScheduleFetch", func() {
		It("schedules an immediate fetch via ScheduleNext when ct is 0 and no delay applies", func() {
			f.ScheduleFetch(arb, 0, Passive, 0, QueueOpIdle)
			Expect(f.state.Kind).To(Equal(FetchScheduleNext))
			Expect(f.nextState.Kind).To(Equal(FetchInProgress))
			Expect(arb.State()).To(Equal(ArbToPrefetch))
		})

		It("counts down when ct is non-zero", func() {
			f.ScheduleFetch(arb, 5, Passive, 0, QueueOpIdle)
			Expect(f.state).To(Equal(FetchState{Kind: FetchScheduled, Counter: 5}))
		})

		It("inserts a 3-cycle delay when the queue is nearly full mid code-fetch", func() {
			f.ScheduleFetch(arb, 0, CodeFetch, 3, QueueOpIdle)
			Expect(f.state.Kind).To(Equal(FetchScheduleNext))
			Expect(f.nextState).To(Equal(FetchState{Kind: FetchDelayed, Counter: 3}))
		})

		It("leaves an already-scheduled fetch alone", func() {
			f.state = FetchState{Kind: FetchScheduled, Counter: 7}
			f.ScheduleFetch(arb, 1, Passive, 0, QueueOpIdle)
			Expect(f.state).To(Equal(FetchState{Kind: FetchScheduled, Counter: 7}))
		})
	})

	Describe("TickPrefetcher", func() {
		It("resolves ScheduleNext to nextState on the following tick, not immediately", func() {
			f.ScheduleFetch(arb, 0, Passive, 0, QueueOpIdle)
			Expect(f.state.Kind).To(Equal(FetchScheduleNext))
			f.TickPrefetcher()
			Expect(f.state.Kind).To(Equal(FetchInProgress))
		})

		It("counts a Delayed fetch down to DelayDone, then InProgress on the next tick", func() {
			f.state = FetchState{Kind: FetchDelayed, Counter: 1}
			f.nextState = FetchState{Kind: FetchInProgress}
			f.TickPrefetcher()
			Expect(f.state.Kind).To(Equal(FetchDelayDone))
			f.TickPrefetcher()
			Expect(f.state.Kind).To(Equal(FetchInProgress))
		})

		It("counts Aborting down to Idle", func() {
			f.state = FetchState{Kind: FetchAborting, Counter: 2}
			f.TickPrefetcher()
			Expect(f.state.Kind).To(Equal(FetchAborting))
			f.TickPrefetcher()
			Expect(f.state.Kind).To(Equal(FetchIdle))
		})

		It("counts a Scheduled fetch down to ScheduleNext, then resolves to nextState", func() {
			f.ScheduleFetch(arb, 2, Passive, 0, QueueOpIdle)
			Expect(f.state).To(Equal(FetchState{Kind: FetchScheduled, Counter: 2}))

			f.TickPrefetcher()
			Expect(f.state).To(Equal(FetchState{Kind: FetchScheduled, Counter: 1}))

			f.TickPrefetcher()
			Expect(f.state.Kind).To(Equal(FetchScheduleNext))

			f.TickPrefetcher()
			Expect(f.state.Kind).To(Equal(FetchInProgress))
		})

		It("resolves a Scheduled fetch counted down to zero through nextState's own delay, not straight to InProgress", func() {
			f.ScheduleFetch(arb, 1, CodeFetch, 3, QueueOpIdle)
			Expect(f.nextState).To(Equal(FetchState{Kind: FetchDelayed, Counter: 3}))

			f.TickPrefetcher()
			Expect(f.state.Kind).To(Equal(FetchScheduleNext))

			f.TickPrefetcher()
			Expect(f.state).To(Equal(FetchState{Kind: FetchDelayed, Counter: 3}))
		})
	})

	Describe("MakeBiuDecision", func() {
		It("yields to the EU when blocked", func() {
			f.state = FetchState{Kind: FetchBlockedByEU}
			f.MakeBiuDecision(arb, q, Intel8088, Passive, QueueOpIdle)
			Expect(arb.State()).To(Equal(ArbToEu))
		})

		It("goes idle when suspended", func() {
			f.suspended = true
			f.MakeBiuDecision(arb, q, Intel8088, Passive, QueueOpIdle)
			Expect(arb.State()).To(Equal(ArbIdle))
		})

		It("schedules a fetch when the queue has room", func() {
			f.MakeBiuDecision(arb, q, Intel8088, Passive, QueueOpIdle)
			Expect(f.state.Kind).To(Equal(FetchScheduleNext))
		})

		It("goes idle when the queue is full", func() {
			for i := 0; i < q.Capacity(); i++ {
				q.Push(byte(i))
			}
			f.MakeBiuDecision(arb, q, Intel8088, Passive, QueueOpIdle)
			Expect(arb.State()).To(Equal(ArbIdle))
		})
	})

	Describe("AbortFetch and AbortFetchFull", func() {
		It("AbortFetch hands the bus to the EU and starts the 2-cycle penalty", func() {
			f.AbortFetch(arb)
			Expect(f.state).To(Equal(FetchState{Kind: FetchAborting, Counter: 2}))
			Expect(arb.State()).To(Equal(ArbToEu))
		})

		It("AbortFetchFull idles the scheduler and the arbiter", func() {
			arb.ChangeState(ArbPrefetch)
			f.AbortFetchFull(arb)
			Expect(f.state.Kind).To(Equal(FetchIdle))
			Expect(arb.State()).To(Equal(ArbIdle))
		})
	})

	Describe("HaltFetch", func() {
		It("cancels a not-yet-started decision when called at T1 or T2", func() {
			f.state = FetchState{Kind: FetchScheduleNext}
			f.HaltFetch(T1)
			Expect(f.state.Kind).To(Equal(FetchIdle))
			Expect(f.suspended).To(BeTrue())
		})

		It("lets a fetch already underway play out past T2", func() {
			f.state = FetchState{Kind: FetchInProgress}
			f.HaltFetch(T3)
			Expect(f.state.Kind).To(Equal(FetchInProgress))
			Expect(f.suspended).To(BeTrue())
		})
	})

	Describe("OnQueueRead", func() {
		It("resumes prefetching once the queue drains to 3 while idle", func() {
			arb.state = ArbIdle
			f.OnQueueRead(arb, 3, Passive, QueueOpIdle)
			Expect(arb.State()).To(Equal(ArbToPrefetch))
			Expect(f.state.Kind).To(Equal(FetchScheduled))
		})

		It("does nothing when the arbiter isn't idle", func() {
			arb.ChangeState(ArbEu)
			f.OnQueueRead(arb, 3, Passive, QueueOpIdle)
			Expect(f.state.Kind).To(Equal(FetchIdle))
		})
	})
})
