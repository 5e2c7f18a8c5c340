package biu

import "github.com/sarchlab/biu8088/bus"

// Biu is the CPU-side aggregate: it owns the prefetch queue, bus signals,
// the in-flight transfer, the prefetch scheduler, the arbitration state
// machine and the trace buffer, and is the sole mutator of cycle time
// (spec §5, §9 "no shared ownership"). The EU is a sibling the host wires
// up separately; Biu exposes only the contract in spec §4.F.
type Biu struct {
	cpuType CPUType
	bus     bus.Bus

	queue   *Queue
	sig     Signals
	tr      Transfer
	fetcher *Fetcher
	arb     *Arbiter
	tracer  Tracer

	// pc is the BIU's own prefetch pointer - the next linear address a
	// code fetch will target. It is distinct from the EU's instruction
	// pointer; the EU redirects it via SetPC after a branch and a flush.
	pc uint32

	// es, cs, ss, ds are the segment registers. Real 8086/8088 hardware
	// keeps these in the BIU, not the EU - it is the BIU that turns a
	// segment:offset pair into the 20-bit linear address every bus
	// transfer actually uses (bus.CalcLinearAddress). The EU supplies
	// offsets and picks which register applies per operand.
	es, cs, ss, ds uint16

	queueOp   QueueOp
	queueByte byte

	// mcPC, nx and rni are the microcode-position shadow spec §3 assigns
	// to the BIU. Their advancement is otherwise the EU's concern; this
	// module only applies the narrow rules §4.F spells out for
	// QueueRead/FetchNext (invariant 6).
	mcPC uint16
	nx   bool
	rni  bool

	busPendingEU bool
	inRep        bool
	state        CPUState

	cycleCount uint64
}

// NewBiu returns a Biu reset as if just powered on: empty queue, prefetch
// pointer at the reset vector (spec's glossary; the host is expected to
// call SetPC if a different image origin applies), and the first prefetch
// already scheduled, so arbitration starts out in ToPrefetch.
func NewBiu(cpuType CPUType, b bus.Bus) *Biu {
	biu := &Biu{
		cpuType: cpuType,
		bus:     b,
		queue:   NewQueue(cpuType),
		fetcher: NewFetcher(),
		arb:     NewArbiter(),
		pc:      bus.DefaultResetAddr,
		cs:      0xFFFF,
		state:   Running,
	}

	// Real hardware starts prefetching the instant it leaves reset; there
	// is no bus transfer yet for make_biu_decision's usual T3 trigger to
	// ride along with, so the very first decision is made here instead.
	biu.fetcher.MakeBiuDecision(biu.arb, biu.queue, biu.cpuType, Passive, QueueOpIdle)

	return biu
}

// --- Observable state (component G/§6 "EU observes queue_op and queue_byte") ---

func (b *Biu) CPUType() CPUType            { return b.cpuType }
func (b *Biu) Queue() *Queue                { return b.queue }
func (b *Biu) Signals() Signals             { return b.sig }
func (b *Biu) TCycle() TCycle               { return b.tr.TCycle }
func (b *Biu) BusStatus() BusStatus         { return b.tr.Status }
func (b *Biu) State() CPUState              { return b.state }
func (b *Biu) QueueOp() QueueOp             { return b.queueOp }
func (b *Biu) QueueByte() byte              { return b.queueByte }
func (b *Biu) PC() uint32                   { return b.pc }
func (b *Biu) ArbiterState() ArbiterState   { return b.arb.State() }
func (b *Biu) FetchState() FetchState       { return b.fetcher.State() }
func (b *Biu) CycleCount() uint64           { return b.cycleCount }
func (b *Biu) Trace() []Event               { return b.tracer.Events() }

// SetPC redirects the prefetch pointer. The EU calls this after a branch,
// normally paired with QueueFlush.
func (b *Biu) SetPC(addr uint32) { b.pc = addr }

// Segment register accessors. The EU sets these directly; the BIU never
// changes them on its own (loading CS/DS/ES/SS is an EU-driven write
// through SetCS/SetDS/SetES/SetSS - this module has no
// MOV-to-segment-register instruction semantics of its own).
func (b *Biu) CS() uint16         { return b.cs }
func (b *Biu) SetCS(v uint16)     { b.cs = v }
func (b *Biu) DS() uint16         { return b.ds }
func (b *Biu) SetDS(v uint16)     { b.ds = v }
func (b *Biu) ES() uint16         { return b.es }
func (b *Biu) SetES(v uint16)     { b.es = v }
func (b *Biu) SS() uint16         { return b.ss }
func (b *Biu) SetSS(v uint16)     { b.ss = v }

// resolveSegment returns the linear address (seg, offset) resolves to,
// via the register the Segment tag names and bus.CalcLinearAddress
// (calc_linear_address_seg in the source). SegNone has no backing
// register; it is only valid for status codes
// (IoRead/IoWrite/InterruptAck) whose address field isn't segment:offset
// in the first place, so resolving it here is an implementer bug.
func (b *Biu) resolveSegment(seg Segment, offset uint16) uint32 {
	var reg uint16
	switch seg {
	case SegES:
		reg = b.es
	case SegCS:
		reg = b.cs
	case SegSS:
		reg = b.ss
	case SegDS:
		reg = b.ds
	default:
		panic(newInvariantError("resolveSegment called with SegNone for a memory operand"))
	}
	return bus.CalcLinearAddress(reg, offset)
}

func (b *Biu) Nx() bool          { return b.nx }
func (b *Biu) SetNx()            { b.nx = true }
func (b *Biu) Rni() bool         { return b.rni }
func (b *Biu) SetRni()           { b.rni = true }
func (b *Biu) McPC() uint16      { return b.mcPC }
func (b *Biu) SetMcPC(v uint16)  { b.mcPC = v }
func (b *Biu) SetInRep(v bool)   { b.inRep = v }

// --- Component G: the cycle driver ---

// Cycle advances the whole BIU by one clock tick: the single primitive
// every other operation in this package is defined in terms of (spec §5).
func (b *Biu) Cycle() {
	b.tick(0, false)
}

// Cycles runs Cycle n times.
func (b *Biu) Cycles(n uint32) {
	for i := uint32(0); i < n; i++ {
		b.Cycle()
	}
}

// CyclesI runs n cycles, stamping each tick's trace event with the
// microcode instruction id from ids (ids[i], or 0 past the end of ids) so
// a trace consumer can correlate ticks back to the EU operation that
// caused them.
func (b *Biu) CyclesI(n uint32, ids []uint16) {
	for i := uint32(0); i < n; i++ {
		var id uint16
		if int(i) < len(ids) {
			id = ids[i]
		}
		b.tick(id, true)
	}
}

// tick is the body of the cycle() primitive (spec §4.G); the step numbers
// in the comments match the spec's normative ordering.
func (b *Biu) tick(instrID uint16, record bool) {
	b.cycleCount++
	b.tracer.cycle = b.cycleCount

	// Step 1: advance the bus transfer engine.
	enteredT3, completed := b.tr.tick(b.bus, &b.sig)

	// Step 2: the T3 BIU decision must run before the prefetcher tick so
	// a fetch it schedules observes the decision this same cycle (spec §5).
	if enteredT3 {
		if delayApplies(b.tr.StatusLatch, b.queue.Len(), b.queueOp) {
			b.tracer.Comment(TagThree)
		}
		b.fetcher.MakeBiuDecision(b.arb, b.queue, b.cpuType, b.tr.StatusLatch, b.queueOp)
	}

	// Step 3: arbitration transitional timers.
	b.arb.TickState()

	// Step 4: prefetch scheduler counters.
	b.fetcher.TickPrefetcher()

	// Step 5: a scheduler that just became ready, with the bus free for
	// prefetching and room in the queue, starts a CodeFetch transfer. The
	// bus-idle check guards against re-triggering every cycle a fetch
	// already in flight still reports InProgress.
	if b.fetcher.State().Kind == FetchInProgress && b.arb.State() == ArbPrefetch && b.tr.Status == Passive {
		if b.queue.HasRoom(b.cpuType) {
			b.startCodeFetch()
		} else {
			b.fetcher.AbortFetchFull(b.arb)
			b.tracer.Comment(TagBiuIdle)
		}
	}

	// Step 6: a CodeFetch reaching T4 delivers its byte(s) into the queue.
	if completed && b.tr.Status == CodeFetch {
		b.deliverFetch()
	}

	// Step 7: publish a trace event for this tick.
	if record {
		b.tracer.events = append(b.tracer.events, Event{
			Cycle:     b.cycleCount,
			InstrID:   instrID,
			QueueOp:   b.queueOp,
			QueueByte: b.queueByte,
			TCycle:    b.tr.TCycle,
			BusStatus: b.tr.Status,
		})
	}
}

// startCodeFetch begins a CodeFetch bus cycle directly, bypassing the EU's
// BusBegin protocol: arbitration is already Prefetch and stable by the
// time the cycle driver calls this (spec §4.F's bus_begin doc: "cannot
// start a CODE fetch").
func (b *Biu) startCodeFetch() {
	size := SizeByte
	n := uint32(1)
	if b.cpuType == Intel8086 {
		size = SizeWord
		n = 2
	}
	b.tr.begin(CodeFetch, SegCS, b.pc, 0, size, Operand8)
	b.pc += n
	b.tracer.Comment(TagFetch)
}

// deliverFetch pushes a completed CodeFetch's byte(s) into the queue. The
// scheduler state is left as this transfer's own T3 decision set it, so a
// successor fetch scheduled there starts as soon as the bus is free.
func (b *Biu) deliverFetch() {
	if b.tr.TransferSize == SizeWord {
		b.queue.Push(byte(b.tr.Data))
		b.queue.Push(byte(b.tr.Data >> 8))
	} else {
		b.queue.Push(byte(b.tr.Data))
	}
	b.tracer.Comment(TagFetchEnd)
}

// --- Internal waits shared by the public API (spec §4.F/§4.G helpers) ---

// busWaitFinish cycles until the current transfer reaches T4, or returns
// immediately if the bus is already Passive.
func (b *Biu) busWaitFinish() uint32 {
	if b.tr.Status == Passive {
		return 0
	}
	var elapsed uint32
	for b.tr.TCycle != T4 {
		b.Cycle()
		elapsed++
	}
	return elapsed
}

// busWaitUntilTx cycles until the last wait state of an active transfer,
// for RNI writes that let the next instruction byte fetch overlap T4.
func (b *Biu) busWaitUntilTx() uint32 {
	switch b.tr.StatusLatch {
	case MemRead, MemWrite, IoRead, IoWrite, CodeFetch:
		b.tracer.Comment(TagWaitTx)
		var elapsed uint32
		for !b.tr.IsLastWait() {
			b.Cycle()
			elapsed++
		}
		b.tracer.Comment(TagTx)
		return elapsed
	default:
		return 0
	}
}

// busWaitOnDelay cycles while the scheduler is running its 3-cycle delay.
func (b *Biu) busWaitOnDelay() {
	for b.fetcher.State().Kind == FetchDelayed {
		b.tracer.Comment(TagBusWaitOnDelay)
		b.Cycle()
	}
}

// BusWaitHalt advances one cycle if the bus is Passive and sitting at T1,
// and does nothing otherwise. No current caller in this package needs it;
// kept for parity with the source's biu_bus_wait_halt.
func (b *Biu) BusWaitHalt() uint32 {
	if b.tr.StatusLatch == Passive && b.tr.TCycle == T1 {
		b.Cycle()
		return 1
	}
	return 0
}

// TryCancelFetch would cancel a fetch scheduled this very cycle
// (FetchScheduled with counter 3) by forcing it to FetchBlockedByEU. The
// source keeps this commented out rather than wired to any caller; same
// here - kept as a commented-out body rather than deleted, since a future
// BusBegin variant may want the tighter cancel window this offers over the
// BlockedByEU reservation BusBegin already takes out in step 2.
//
// func (b *Biu) tryCancelFetch() {
// 	if b.fetcher.state.Kind == FetchScheduled && b.fetcher.state.Counter == 3 {
// 		b.fetcher.state = FetchState{Kind: FetchBlockedByEU}
// 	}
// }

// waitForTransition cycles until arbitration has settled on a stable state.
func (b *Biu) waitForTransition() {
	trans := false
	for b.arb.InTransition() {
		b.tracer.Comment(TagTransWaitStart)
		trans = true
		b.Cycle()
	}
	if trans {
		b.tracer.Comment(TagTransWaitDone)
	}
}

// --- Component F: the EU-facing API ---

// BusBegin starts a new EU-driven bus transfer, implementing the ten-step
// protocol in spec §4.F. It cannot be used to start a CodeFetch; the cycle
// driver starts those internally via startCodeFetch.
func (b *Biu) BusBegin(status BusStatus, seg Segment, addr uint32, data uint16, size TransferSize, opSize OperandSize, first bool) {
	b.tracer.Comment(TagBusBegin)

	// Step 1: memory breakpoint check.
	if b.bus.GetFlags(addr)&bus.AttrBreakpoint != 0 {
		b.state = BreakpointHit
	}

	// Step 2: reserve the next bus cycle for the EU if we can still do so.
	if status != CodeFetch {
		b.busPendingEU = true
		switch b.fetcher.State().Kind {
		case FetchScheduled, FetchDelayed:
			// Can't block prefetching once already scheduled.
		default:
			if b.tr.IsBeforeT3() {
				b.fetcher.state = FetchState{Kind: FetchBlockedByEU}
			}
		}
	}

	// Step 3: wait the current transfer to T4, then one more tick off it.
	b.busWaitFinish()
	if b.tr.TCycle == T4 {
		b.Cycle()
	}

	// Step 4: a Delayed fetch yields the bus to the EU.
	if b.fetcher.State().Kind == FetchDelayed {
		b.arb.ChangeState(ArbEu)
	}

	// Step 5/6: wait out any transitional arbitration state and any delay.
	b.waitForTransition()
	b.busWaitOnDelay()

	// Step 7: release a reservation that was never converted into an abort.
	if b.fetcher.State().Kind == FetchBlockedByEU {
		b.fetcher.state = FetchState{Kind: FetchIdle}
	}
	b.busPendingEU = false

	// Step 8: transfer_n / final_transfer bookkeeping.
	switch {
	case size == SizeWord:
		b.tr.TransferN, b.tr.FinalTransfer = 1, true
	case first:
		switch opSize {
		case Operand8:
			b.tr.TransferN, b.tr.FinalTransfer = 1, true
		case Operand16:
			b.tr.TransferN, b.tr.FinalTransfer = 1, false
		}
	default:
		b.tr.TransferN, b.tr.FinalTransfer = 2, true
	}

	// Step 9: dispatch on the (now-stable) arbitration state.
	switch b.arb.State() {
	case ArbEu:
		// Already where we need to be.
	case ArbPrefetch:
		// A prefetch sneaked onto the bus on T3; abort it.
		b.tracer.Comment(TagAbort)
		b.tr.TCycle = T1
		b.tr.StatusLatch = Passive
		b.tr.Status = Passive
		b.sig.ALE = false
		b.fetcher.AbortFetch(b.arb)
		b.Cycles(2)
	case ArbIdle:
		if status == Halt {
			b.Cycle()
		} else if b.tr.TransferN == 1 {
			b.arb.ChangeState(ArbEu)
			b.Cycles(3)
		}
	default:
		panic(newInvariantError("bus_begin entered with transitional arbitration state %v", b.arb.State()))
	}

	// Step 10: latch the new transfer.
	b.tr.begin(status, seg, addr, data, size, opSize)
	b.sig.ALE = true
}

// ReadU8 resolves seg:offset to a linear address (calc_linear_address_seg)
// and performs a single MemRead byte transfer, returning the low byte of
// the data bus once it completes.
func (b *Biu) ReadU8(seg Segment, offset uint16) uint8 {
	addr := b.resolveSegment(seg, offset)
	b.BusBegin(MemRead, seg, addr, 0, SizeByte, Operand8, true)
	b.busWaitFinish()
	return uint8(b.tr.Data)
}

// WriteU8 resolves seg:offset and performs a single MemWrite byte transfer.
func (b *Biu) WriteU8(seg Segment, offset uint16, value uint8, flag ReadWriteFlag) {
	addr := b.resolveSegment(seg, offset)
	b.BusBegin(MemWrite, seg, addr, uint16(value), SizeByte, Operand8, true)
	if flag == RNI {
		b.busWaitUntilTx()
	} else {
		b.busWaitFinish()
	}
}

// ReadU16 resolves seg:offset and seg:offset+1 independently (each byte
// re-resolves through the segment register, matching the source's two
// separate calc_linear_address_seg calls rather than a flat addr+1) and
// performs two consecutive MemRead byte transfers, LSB first, returning
// the assembled word (spec §4.F).
func (b *Biu) ReadU16(seg Segment, offset uint16, flag ReadWriteFlag) uint16 {
	addr := b.resolveSegment(seg, offset)
	b.BusBegin(MemRead, seg, addr, 0, SizeByte, Operand16, true)
	b.busWaitFinish()
	word := uint16(b.tr.Data) & 0x00FF

	addr2 := b.resolveSegment(seg, offset+1)
	b.BusBegin(MemRead, seg, addr2, 0, SizeByte, Operand16, false)
	// The source's RNI path for reads behaves identically to Normal.
	b.busWaitFinish()
	word |= (uint16(b.tr.Data) & 0x00FF) << 8
	return word
}

// WriteU16 resolves seg:offset and seg:offset+1 independently and performs
// two consecutive MemWrite byte transfers, LSB first.
func (b *Biu) WriteU16(seg Segment, offset uint16, word uint16, flag ReadWriteFlag) {
	addr := b.resolveSegment(seg, offset)
	b.BusBegin(MemWrite, seg, addr, word&0x00FF, SizeByte, Operand16, true)
	b.busWaitFinish()

	addr2 := b.resolveSegment(seg, offset+1)
	b.BusBegin(MemWrite, seg, addr2, (word>>8)&0x00FF, SizeByte, Operand16, false)
	if flag == RNI {
		b.busWaitUntilTx()
	} else {
		b.busWaitFinish()
	}
}

// IOReadU8 performs a single IoRead byte transfer.
func (b *Biu) IOReadU8(addr uint16) uint8 {
	b.BusBegin(IoRead, SegNone, uint32(addr), 0, SizeByte, Operand8, true)
	b.busWaitFinish()
	return uint8(b.tr.Data)
}

// IOWriteU8 performs a single IoWrite byte transfer.
func (b *Biu) IOWriteU8(addr uint16, value uint8, flag ReadWriteFlag) {
	b.BusBegin(IoWrite, SegNone, uint32(addr), uint16(value), SizeByte, Operand8, true)
	if flag == RNI {
		b.busWaitUntilTx()
	} else {
		b.busWaitFinish()
	}
}

// IOReadU16 decomposes into two IoRead byte transfers, matching the
// source's port-pair behavior rather than a native 16-bit IO cycle.
func (b *Biu) IOReadU16(addr uint16, flag ReadWriteFlag) uint16 {
	b.BusBegin(IoRead, SegNone, uint32(addr), 0, SizeByte, Operand16, true)
	b.busWaitFinish()
	word := uint16(b.tr.Data) & 0x00FF

	b.BusBegin(IoRead, SegNone, uint32(addr+1), 0, SizeByte, Operand16, false)
	if flag == RNI {
		b.busWaitUntilTx()
	} else {
		b.busWaitFinish()
	}
	word |= (uint16(b.tr.Data) & 0x00FF) << 8
	return word
}

// IOWriteU16 decomposes into two IoWrite byte transfers.
func (b *Biu) IOWriteU16(addr uint16, word uint16, flag ReadWriteFlag) {
	b.BusBegin(IoWrite, SegNone, uint32(addr), word&0x00FF, SizeByte, Operand16, true)
	b.busWaitFinish()

	b.BusBegin(IoWrite, SegNone, uint32(addr+1), (word>>8)&0x00FF, SizeByte, Operand16, false)
	if flag == RNI {
		b.busWaitUntilTx()
	} else {
		b.busWaitFinish()
	}
}

// Inta runs the two-cycle interrupt-acknowledge sequence: the first cycle
// carries no data, the second carries the vector.
func (b *Biu) Inta(vector uint8) {
	b.BusBegin(InterruptAck, SegNone, 0, 0, SizeByte, Operand16, true)
	b.busWaitFinish()

	b.BusBegin(InterruptAck, SegNone, 0, uint16(vector), SizeByte, Operand16, false)
	b.busWaitFinish()
}

// Halt issues the one-cycle Halt bus status and leaves t_cycle at T1
// (spec §4.F, §8 scenario 6).
func (b *Biu) Halt() {
	b.fetcher.state = FetchState{Kind: FetchIdle}
	b.busWaitFinish()
	if b.tr.TCycle == T4 {
		b.Cycle()
	}
	b.tr.TCycle = Ti
	b.Cycle()

	b.tr.Status = Halt
	b.tr.StatusLatch = Halt
	b.tr.SegmentTag = SegCS
	b.tr.TransferSize = SizeByte
	b.tr.OperandSize = Operand8
	b.tr.TransferN = 1
	b.tr.FinalTransfer = true
	b.tr.TCycle = T1
	b.sig.ALE = true
	b.tr.Data = 0
}

// QueueRead returns the next instruction byte: the preload slot if one is
// waiting, otherwise a queue pop (cycling until the queue is non-empty).
func (b *Biu) QueueRead(dtype QueueType, reader QueueReader) uint8 {
	if preload, ok := b.queue.TakePreload(); ok {
		b.queueOp = QueueOpFirst
		b.queueByte = preload
		if b.nx {
			b.nx = false
		}
		return preload
	}

	var byteRead byte
	if b.queue.Len() > 0 {
		byteRead = b.queue.Pop()
		b.fetcher.OnQueueRead(b.arb, b.queue.Len(), b.tr.StatusLatch, b.queueOp)
	} else {
		for b.queue.Len() == 0 {
			b.Cycle()
		}
		byteRead = b.queue.Pop()
	}
	b.queueByte = byteRead

	advancePC := false
	switch dtype {
	case QTypeFirst:
		b.queueOp = QueueOpFirst
	case QTypeSubsequent:
		b.queueOp = QueueOpSubsequent
		if reader == ReaderEu {
			advancePC = true
		}
	}

	b.Cycle()
	if advancePC {
		if b.nx {
			b.nx = false
		}
		b.mcPC++
	}
	return byteRead
}

// FetchNext preloads the next instruction byte, spinning (with a 20-cycle
// fatal timeout) until the queue is non-empty if it is currently empty.
// Skipped while a string instruction is still repeating.
func (b *Biu) FetchNext() {
	if b.inRep {
		return
	}
	b.tracer.Comment(TagFetch)

	if b.queue.Len() == 0 {
		timeout := 0
		for b.queue.Len() == 0 {
			if b.nx {
				b.tracer.Comment(TagNX)
				b.nx = false
				b.rni = false
			}
			b.Cycle()
			timeout++
			if timeout == 20 {
				panic(newInvariantError("fetch_next timed out waiting for a queued byte"))
			}
		}
		b.queue.SetPreload()
		b.queueOp = QueueOpFirst
		b.tracer.Comment(TagFetchEnd)
		b.Cycle()
		return
	}

	b.queue.SetPreload()
	b.queueOp = QueueOpFirst
	b.fetcher.OnQueueRead(b.arb, b.queue.Len(), b.tr.StatusLatch, b.queueOp)

	if b.nx {
		b.tracer.Comment(TagNX)
	}
	if b.rni {
		b.tracer.Comment(TagRNI)
		b.rni = false
	}
	b.tracer.Comment(TagFetchEnd)
	b.Cycle()
}

// SuspendFetch idles the scheduler, waiting out a code fetch already in
// flight before settling arbitration to Idle.
func (b *Biu) SuspendFetch() {
	b.tracer.Comment(TagSusp)
	b.fetcher.Suspend()

	if b.tr.StatusLatch == CodeFetch {
		b.busWaitFinish()
	}
	b.arb.ChangeState(ArbIdle)
}

// HaltFetch marks fetching suspended ahead of a HALT. Calling it before T3
// (Ti, Tinit, T1 or T2) cancels a pending decision cleanly; any later and
// the fetch already underway completes (spec §4.F).
func (b *Biu) HaltFetch() {
	b.tracer.Comment(TagHaltFetch)
	b.fetcher.HaltFetch(b.tr.TCycle)
}

// QueueFlush clears the queue and preload, resets the scheduler to Idle
// and requests arbitration transition to Prefetch (spec §4.F, invariant 7).
func (b *Biu) QueueFlush() {
	b.queue.Flush()
	b.queueOp = QueueOpFlush
	b.tracer.Comment(TagFlush)

	b.fetcher.state = FetchState{Kind: FetchIdle}
	b.fetcher.Resume()

	b.arb.ChangeState(ArbPrefetch)
}
