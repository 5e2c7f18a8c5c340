// Package main provides the entry point for biu8088, a driver that loads a
// flat boot image, runs the Bus Interface Unit forward cycle by cycle, and
// reports the resulting bus timing.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/biu8088/biu"
	"github.com/sarchlab/biu8088/bus"
	"github.com/sarchlab/biu8088/config"
)

var (
	configPath = flag.String("config", "", "Path to a BIU configuration JSON file")
	cycles     = flag.Uint64("cycles", 1000, "Number of cycles to run")
	verbose    = flag.Bool("v", false, "Verbose per-cycle trace output")
)

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	cpuType, err := parseCPUType(cfg.CPUType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	flat := bus.NewFlatBus()
	if cfg.BootImage != "" {
		img, err := bus.LoadImage(cfg.BootImage, cfg.ImageOrigin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading boot image: %v\n", err)
			os.Exit(1)
		}
		img.LoadInto(flat)
		if *verbose {
			fmt.Printf("Loaded %s (%d bytes) at 0x%05X\n", cfg.BootImage, len(img.Data), img.Origin)
		}
	}

	var backing bus.Bus = flat
	if cfg.CacheEnabled {
		backing = bus.NewCachedBus(bus.CacheConfig{
			Size:           cfg.CacheSize,
			Associativity:  cfg.CacheAssociativity,
			BlockSize:      cfg.CacheBlockSize,
			HitWaitStates:  cfg.CacheHitWaitStates,
			MissWaitStates: cfg.CacheMissWaitStates,
		}, flat)
	} else {
		flat.SetWaitStates(cfg.FixedWaitStates)
	}

	u := biu.NewBiu(cpuType, backing)
	u.SetPC(cfg.ResetAddr)

	var err2 error
	func() {
		defer biu.Recover(&err2, u.Trace)
		u.Cycles(uint32(*cycles))
	}()

	if err2 != nil {
		fmt.Fprintf(os.Stderr, "biu halted on invariant violation: %v\n", err2)
		os.Exit(1)
	}

	fmt.Printf("Ran %d cycles\n", u.CycleCount())
	fmt.Printf("Final PC: 0x%05X\n", u.PC())
	fmt.Printf("Final bus status: %v, t_cycle: %v\n", u.BusStatus(), u.TCycle())
	fmt.Printf("Final arbitration state: %v\n", u.ArbiterState())
	fmt.Printf("Queue occupancy: %d/%d\n", u.Queue().Len(), u.Queue().Capacity())

	if *verbose {
		fmt.Println("\nTrace tail:")
		for _, e := range u.Trace() {
			if e.Tag != "" {
				fmt.Printf("  cycle %d: %s\n", e.Cycle, e.Tag)
			}
		}
	}
}

func parseCPUType(s string) (biu.CPUType, error) {
	switch s {
	case "8088":
		return biu.Intel8088, nil
	case "80c88":
		return biu.Harris80C88, nil
	case "8086":
		return biu.Intel8086, nil
	default:
		return 0, fmt.Errorf("unknown cpu_type %q", s)
	}
}
