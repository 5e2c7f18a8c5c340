// Package main provides a narrow trace-dump tool: run a fixed number of
// cycles from a cold-started Biu against a flat boot image and print every
// recorded tick, one per line. Useful for diffing bus timing across runs
// without the full biu8088 CLI's config/cache machinery.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/biu8088/biu"
	"github.com/sarchlab/biu8088/bus"
)

var (
	image  = flag.String("image", "", "Path to a flat boot image")
	origin = flag.Uint64("origin", uint64(bus.DefaultResetAddr), "Linear address the image loads at")
	cycles = flag.Uint64("cycles", 200, "Number of cycles to trace")
)

func main() {
	flag.Parse()

	if *image == "" {
		fmt.Fprintln(os.Stderr, "Usage: biu8088trace -image <file> [-origin 0xFFFF0] [-cycles 200]")
		os.Exit(1)
	}

	img, err := bus.LoadImage(*image, uint32(*origin))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading image: %v\n", err)
		os.Exit(1)
	}

	flat := bus.NewFlatBus()
	img.LoadInto(flat)

	u := biu.NewBiu(biu.Intel8088, flat)
	u.SetPC(uint32(*origin))

	var runErr error
	func() {
		defer biu.Recover(&runErr, u.Trace)
		ids := make([]uint16, *cycles)
		u.CyclesI(uint32(*cycles), ids)
	}()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "biu halted on invariant violation: %v\n", runErr)
	}

	for _, e := range u.Trace() {
		fmt.Printf("cycle=%-6d status=%-8v t=%-6v queue_op=%-10v queue_byte=%#02x",
			e.Cycle, e.BusStatus, e.TCycle, e.QueueOp, e.QueueByte)
		if e.Tag != "" {
			fmt.Printf(" tag=%s", e.Tag)
		}
		fmt.Println()
	}
}
