package biu

import "github.com/sarchlab/biu8088/bus"

// Transfer is the single bus-transfer record (spec §3, Component C): it
// advances one T-state per Cycle() call and is the only thing on the bus
// at any one time — BusBegin always waits a prior Transfer to T4 before
// starting a new one (spec §5).
type Transfer struct {
	Status        BusStatus
	StatusLatch   BusStatus
	SegmentTag    Segment
	Address       uint32
	Data          uint16
	TransferSize  TransferSize
	OperandSize   OperandSize
	TransferN     int
	FinalTransfer bool
	TCycle        TCycle
	WaitStates    uint32

	resolved bool
}

// IsBeforeT3 reports whether the transfer has not yet reached the point
// where a concurrent EU bus request can no longer block a pending
// prefetch (spec §4.C).
func (tr *Transfer) IsBeforeT3() bool {
	switch tr.TCycle {
	case Ti, Tinit, T1, T2:
		return true
	default:
		return false
	}
}

// IsLastWait reports whether this cycle is the final wait state: T3 with
// no wait states pending, or the last Tw before T4 (spec §4.C).
func (tr *Transfer) IsLastWait() bool {
	switch tr.TCycle {
	case T3, Tw:
		return tr.WaitStates == 0
	default:
		return false
	}
}

// begin latches a brand-new transfer. The caller (BusBegin, component F)
// is responsible for waiting any prior transfer to completion first.
func (tr *Transfer) begin(status BusStatus, seg Segment, addr uint32, data uint16, size TransferSize, opSize OperandSize) {
	tr.Status = status
	tr.StatusLatch = status
	tr.SegmentTag = seg
	tr.Address = addr
	tr.Data = data
	tr.TransferSize = size
	tr.OperandSize = opSize
	tr.TCycle = Tinit
	tr.WaitStates = 0
	tr.resolved = false
}

// resolveAccess performs the actual bus access for memory/IO reads and
// writes. It runs once, on the T3 tick, which is also where real
// hardware samples READY and therefore where wait states become known
// (spec §4.C: "On T3 the BIU consults the bus for READY").
func (tr *Transfer) resolveAccess(b bus.Bus) {
	switch tr.Status {
	case MemRead, CodeFetch:
		if tr.TransferSize == SizeWord {
			v, waits := b.ReadU16(tr.Address)
			tr.Data = v
			tr.WaitStates = waits
		} else {
			v, waits := b.ReadU8(tr.Address)
			tr.Data = uint16(v)
			tr.WaitStates = waits
		}
	case MemWrite:
		if tr.TransferSize == SizeWord {
			tr.WaitStates = b.WriteU16(tr.Address, tr.Data)
		} else {
			tr.WaitStates = b.WriteU8(tr.Address, byte(tr.Data))
		}
	case IoRead:
		v, waits := b.IOReadU8(tr.Address)
		tr.Data = uint16(v)
		tr.WaitStates = waits
	case IoWrite:
		tr.WaitStates = b.IOWriteU8(tr.Address, byte(tr.Data))
	default:
		// InterruptAck and Halt carry no backing-store access: INTA's
		// data is supplied by the caller (0, then the vector); Halt's
		// data bus is always 0.
		tr.WaitStates = 0
	}
}

// tick advances the T-state machine by one cycle. It returns whether
// this tick just entered T3 (the cycle the BIU decision runs on, spec
// §4.G step 2) and whether the transfer just completed: the tick that
// moves T-state into T4, where the transfer's data is sampled. A
// later, separate tick (still showing TCycle()==T4 beforehand) retires
// the bus back to Ti; it does not report completed again.
func (tr *Transfer) tick(b bus.Bus, sig *Signals) (enteredT3, completed bool) {
	switch tr.TCycle {
	case Ti:
		// Passive; nothing to advance until the next BusBegin.
	case Tinit:
		tr.TCycle = T1
		sig.ALE = true
	case T1:
		tr.TCycle = T2
		sig.ALE = false
		sig.assertForStatus(tr.StatusLatch)
	case T2:
		tr.TCycle = T3
		enteredT3 = true
	case T3:
		if !tr.resolved {
			tr.resolveAccess(b)
			tr.resolved = true
		}
		if tr.WaitStates > 0 {
			tr.TCycle = Tw
			tr.WaitStates--
		} else {
			tr.TCycle = T4
			completed = true
		}
	case Tw:
		if tr.WaitStates > 0 {
			tr.WaitStates--
		} else {
			tr.TCycle = T4
			completed = true
		}
	case T4:
		// Separate, later tick: whatever forced another cycle() while
		// already on T4 (BusBegin's one extra tick, or free-running
		// prefetcher ticks) retires the transfer back to idle.
		sig.busEnd()
		tr.Status = Passive
		tr.TCycle = Ti
	}
	return
}
