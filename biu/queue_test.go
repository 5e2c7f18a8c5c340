package biu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/biu8088/biu"
)

var _ = Describe("Queue", func() {
	var q *biu.Queue

	BeforeEach(func() {
		q = biu.NewQueue(biu.Intel8088)
	})

	It("starts empty", func() {
		Expect(q.Len()).To(Equal(0))
		Expect(q.Capacity()).To(Equal(4))
		Expect(q.Full()).To(BeFalse())
	})

	It("has capacity 6 on the 8086", func() {
		wide := biu.NewQueue(biu.Intel8086)
		Expect(wide.Capacity()).To(Equal(6))
	})

	It("pushes and pops in FIFO order", func() {
		q.Push(0x11)
		q.Push(0x22)
		q.Push(0x33)
		Expect(q.Pop()).To(Equal(byte(0x11)))
		Expect(q.Pop()).To(Equal(byte(0x22)))
		Expect(q.Len()).To(Equal(1))
	})

	It("reports full once at capacity", func() {
		for i := 0; i < 4; i++ {
			q.Push(byte(i))
		}
		Expect(q.Full()).To(BeTrue())
	})

	It("panics pushing onto a full queue", func() {
		for i := 0; i < 4; i++ {
			q.Push(byte(i))
		}
		Expect(func() { q.Push(0xFF) }).To(PanicWith(BeAssignableToTypeOf(&biu.InvariantError{})))
	})

	It("panics popping an empty queue", func() {
		Expect(func() { q.Pop() }).To(PanicWith(BeAssignableToTypeOf(&biu.InvariantError{})))
	})

	It("moves a byte into the preload register and reports it separately from Len", func() {
		q.Push(0xAB)
		q.Push(0xCD)
		q.SetPreload()
		Expect(q.Len()).To(Equal(1))
		Expect(q.LenIncludingPreload()).To(Equal(2))

		b, ok := q.TakePreload()
		Expect(ok).To(BeTrue())
		Expect(b).To(Equal(byte(0xAB)))
		Expect(q.HasPreload()).To(BeFalse())
	})

	It("flush clears both queue and preload", func() {
		q.Push(0x01)
		q.Push(0x02)
		q.SetPreload()
		q.Flush()
		Expect(q.Len()).To(Equal(0))
		Expect(q.HasPreload()).To(BeFalse())
		Expect(q.LenIncludingPreload()).To(Equal(0))
	})

	Describe("HasRoom", func() {
		It("allows up to capacity on the 8088", func() {
			for i := 0; i < 3; i++ {
				q.Push(byte(i))
			}
			Expect(q.HasRoom(biu.Intel8088)).To(BeTrue())
			q.Push(0xFF)
			Expect(q.HasRoom(biu.Intel8088)).To(BeFalse())
		})

		It("needs two free slots on the 8086", func() {
			wide := biu.NewQueue(biu.Intel8086)
			for i := 0; i < 5; i++ {
				wide.Push(byte(i))
			}
			Expect(wide.HasRoom(biu.Intel8086)).To(BeFalse())
		})
	})
})
