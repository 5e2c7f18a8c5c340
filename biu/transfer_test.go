package biu

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/biu8088/bus"
)

var _ = Describe("Transfer", func() {
	var (
		b   *bus.FlatBus
		sig Signals
		tr  Transfer
	)

	BeforeEach(func() {
		b = bus.NewFlatBus()
		sig = Signals{}
		tr = Transfer{}
	})

	runToCompletion := func() int {
		tr.begin(MemRead, SegDS, 0x100, 0, SizeByte, Operand8)
		cycles := 0
		for {
			cycles++
			_, completed := tr.tick(b, &sig)
			if completed {
				return cycles
			}
			if cycles > 16 {
				Fail("transfer never completed")
			}
		}
	}

	It("takes exactly 4 T-states with no wait states", func() {
		Expect(runToCompletion()).To(Equal(4))
	})

	It("asserts ALE only during T1", func() {
		tr.begin(MemRead, SegDS, 0x100, 0, SizeByte, Operand8)

		tr.tick(b, &sig) // Tinit -> T1
		Expect(tr.TCycle).To(Equal(T1))
		Expect(sig.ALE).To(BeTrue())

		tr.tick(b, &sig) // T1 -> T2
		Expect(tr.TCycle).To(Equal(T2))
		Expect(sig.ALE).To(BeFalse())
	})

	It("reports enteredT3 exactly once, on the T2->T3 tick", func() {
		tr.begin(MemRead, SegDS, 0x100, 0, SizeByte, Operand8)

		tr.tick(b, &sig) // Tinit -> T1
		tr.tick(b, &sig) // T1 -> T2
		enteredT3, _ := tr.tick(b, &sig) // T2 -> T3
		Expect(enteredT3).To(BeTrue())
		Expect(tr.TCycle).To(Equal(T3))

		enteredT3, _ = tr.tick(b, &sig) // T3 -> T4
		Expect(enteredT3).To(BeFalse())
	})

	It("signals completed on the tick that enters T4, not the one that leaves it", func() {
		tr.begin(MemRead, SegDS, 0x100, 0, SizeByte, Operand8)
		tr.tick(b, &sig) // Tinit -> T1
		tr.tick(b, &sig) // T1 -> T2
		tr.tick(b, &sig) // T2 -> T3

		_, completed := tr.tick(b, &sig) // T3 -> T4
		Expect(completed).To(BeTrue())
		Expect(tr.TCycle).To(Equal(T4))

		_, completed = tr.tick(b, &sig) // T4 -> Ti
		Expect(completed).To(BeFalse())
		Expect(tr.TCycle).To(Equal(Ti))
	})

	It("stretches with Tw when the bus reports wait states", func() {
		b.SetWaitStates(2)
		tr.begin(MemRead, SegDS, 0x100, 0, SizeByte, Operand8)

		cycles := 0
		for {
			cycles++
			_, completed := tr.tick(b, &sig)
			if completed {
				break
			}
			if cycles > 16 {
				Fail("transfer never completed")
			}
		}
		Expect(cycles).To(Equal(6)) // Tinit,T1,T2,T3,Tw,Tw->T4
	})

	It("round-trips a word write then a word read in exactly 8 cycles combined", func() {
		write := Transfer{}
		write.begin(MemWrite, SegDS, 0x200, 0xBEEF, SizeWord, Operand16)
		writeCycles := 0
		for {
			writeCycles++
			_, completed := write.tick(b, &sig)
			if completed {
				break
			}
		}
		write.tick(b, &sig) // T4 -> Ti

		read := Transfer{}
		read.begin(MemRead, SegDS, 0x200, 0, SizeWord, Operand16)
		readCycles := 0
		for {
			readCycles++
			_, completed := read.tick(b, &sig)
			if completed {
				break
			}
		}

		Expect(writeCycles).To(Equal(4))
		Expect(readCycles).To(Equal(4))
		Expect(read.Data).To(Equal(uint16(0xBEEF)))
	})

	It("clears the command lines and returns to Passive/Ti at T4", func() {
		tr.begin(MemRead, SegDS, 0x100, 0, SizeByte, Operand8)
		for i := 0; i < 3; i++ {
			tr.tick(b, &sig)
		}
		_, completed := tr.tick(b, &sig) // -> T4
		Expect(completed).To(BeTrue())
		Expect(sig.MRDC).To(BeTrue())

		tr.tick(b, &sig) // T4 -> Ti
		Expect(sig.MRDC).To(BeFalse())
		Expect(tr.Status).To(Equal(Passive))
		Expect(tr.TCycle).To(Equal(Ti))
	})
})
