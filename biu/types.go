// Package biu implements the cycle-accurate 8088/8086 Bus Interface Unit:
// the prefetch queue, bus transfer engine, prefetch scheduler, and BIU
// arbitration state machine described in MartyPC's cpu_808x::biu, ported
// to the 8088/8086 bus contract in package bus.
package biu

import "fmt"

// CPUType selects the queue capacity and fetch-width behavior of the
// BIU being modeled. Intel8088 and Harris80C88 are pin-compatible and
// share all BIU timing; Intel8086 has a wider bus and fetches words
// atomically.
type CPUType uint8

const (
	Intel8088 CPUType = iota
	Harris80C88
	Intel8086
)

// QueueCapacity returns the prefetch queue depth for the CPU type.
func (t CPUType) QueueCapacity() int {
	if t == Intel8086 {
		return 6
	}
	return 4
}

// String implements fmt.Stringer for trace/debug output.
func (t CPUType) String() string {
	switch t {
	case Intel8088:
		return "Intel8088"
	case Harris80C88:
		return "Harris80C88"
	case Intel8086:
		return "Intel8086"
	default:
		return fmt.Sprintf("CPUType(%d)", uint8(t))
	}
}

// BusStatus is the bus cycle type latched for the duration of a transfer.
type BusStatus uint8

const (
	Passive BusStatus = iota
	CodeFetch
	MemRead
	MemWrite
	IoRead
	IoWrite
	InterruptAck
	Halt
)

func (s BusStatus) String() string {
	switch s {
	case Passive:
		return "Passive"
	case CodeFetch:
		return "CodeFetch"
	case MemRead:
		return "MemRead"
	case MemWrite:
		return "MemWrite"
	case IoRead:
		return "IoRead"
	case IoWrite:
		return "IoWrite"
	case InterruptAck:
		return "InterruptAck"
	case Halt:
		return "Halt"
	default:
		return fmt.Sprintf("BusStatus(%d)", uint8(s))
	}
}

// Segment selects which of the BIU's four segment registers a public API
// call's offset is resolved against (CalcLinearAddress in package bus),
// and tags the resulting transfer for tracing. Segment *override prefixes*
// — the EU's decision to substitute one of these for an instruction's
// default segment — are out of scope here; this module only resolves
// whichever Segment the EU already picked.
type Segment uint8

const (
	SegNone Segment = iota
	SegES
	SegCS
	SegSS
	SegDS
)

// TransferSize is the size of a single bus transfer (always Byte on the
// 8088; 8086 code fetches use Word).
type TransferSize uint8

const (
	SizeByte TransferSize = iota
	SizeWord
)

// OperandSize is the size of the logical operand the BIU API call is
// servicing, independent of how many byte transfers it takes.
type OperandSize uint8

const (
	Operand8 OperandSize = iota
	Operand16
)

// TCycle is one T-state of a bus transfer.
type TCycle uint8

const (
	Ti TCycle = iota
	Tinit
	T1
	T2
	T3
	Tw
	T4
)

func (t TCycle) String() string {
	switch t {
	case Ti:
		return "Ti"
	case Tinit:
		return "Tinit"
	case T1:
		return "T1"
	case T2:
		return "T2"
	case T3:
		return "T3"
	case Tw:
		return "Tw"
	case T4:
		return "T4"
	default:
		return fmt.Sprintf("TCycle(%d)", uint8(t))
	}
}

// QueueType is the caller's stated intent for a queue read: is this the
// first byte of a new instruction, or a subsequent byte of the one
// already underway. It is genuinely redundant with QueueOp (spec §9) —
// QueueType is "input intent", QueueOp is "observable status line" (the
// QS0/QS1 lines a logic analyzer would see). Both are kept for API
// stability with the source this was ported from.
type QueueType uint8

const (
	QTypeFirst QueueType = iota
	QTypeSubsequent
)

// QueueReader says who is reading the queue: the EU consuming an
// instruction byte (which advances the microcode PC) or the BIU itself
// prefetching ahead (which does not).
type QueueReader uint8

const (
	ReaderBiu QueueReader = iota
	ReaderEu
)

// QueueOp is the observable queue-status line for the current cycle —
// what a bus trace would show on QS0/QS1.
type QueueOp uint8

const (
	QueueOpIdle QueueOp = iota
	QueueOpFirst
	QueueOpSubsequent
	QueueOpFlush
)

func (q QueueOp) String() string {
	switch q {
	case QueueOpIdle:
		return "Idle"
	case QueueOpFirst:
		return "First"
	case QueueOpSubsequent:
		return "Subsequent"
	case QueueOpFlush:
		return "Flush"
	default:
		return fmt.Sprintf("QueueOp(%d)", uint8(q))
	}
}

// ReadWriteFlag distinguishes a normal write (wait to T4) from an RNI
// write, which may overlap with the fetch of the next instruction byte.
type ReadWriteFlag uint8

const (
	Normal ReadWriteFlag = iota
	RNI
)

// CPUState is the host-observable state of the CPU aggregate the BIU
// reports breakpoint hits through. Anything beyond Running/BreakpointHit
// belongs to the EU and is out of scope here.
type CPUState uint8

const (
	Running CPUState = iota
	BreakpointHit
)
