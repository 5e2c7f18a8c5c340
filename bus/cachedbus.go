package bus

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// CacheConfig mirrors the teacher's timing/cache.Config shape: a single
// direct/set-associative cache sitting between the BIU and a backing Bus.
type CacheConfig struct {
	// Size in bytes.
	Size int
	// Associativity (number of ways).
	Associativity int
	// BlockSize in bytes (cache line size).
	BlockSize int
	// HitWaitStates is the number of extra Tw states injected on a hit.
	// Zero on real period hardware with a well-tuned cache controller.
	HitWaitStates uint32
	// MissWaitStates is the number of extra Tw states injected on a miss
	// (models the line fill from the backing bus).
	MissWaitStates uint32
}

// DefaultCacheConfig returns a small cache sized for a turbo-XT class
// wait-state generator: 2KB, 4-way, 16-byte lines.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Size:           2048,
		Associativity:  4,
		BlockSize:      16,
		HitWaitStates:  0,
		MissWaitStates: 4,
	}
}

// CachedBus wraps a backing Bus with a read/write-allocate cache that
// turns a fixed-latency backing store into the variable READY timing the
// Bus Transfer Engine (biu.Transfer) injects Tw states for. The CLI
// harness uses it when cache_enabled is set (otherwise FlatBus's fixed
// SetWaitStates count applies); writes are write-through so the backing
// store is always authoritative for reads that miss.
type CachedBus struct {
	config  CacheConfig
	backing Bus

	directory *akitacache.DirectoryImpl
	lines     [][]byte
}

// NewCachedBus creates a CachedBus in front of backing.
func NewCachedBus(config CacheConfig, backing Bus) *CachedBus {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	lines := make([][]byte, totalBlocks)
	for i := range lines {
		lines[i] = make([]byte, config.BlockSize)
	}

	return &CachedBus{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		lines:   lines,
		backing: backing,
	}
}

func (c *CachedBus) lineIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *CachedBus) blockAddr(addr uint32) uint32 {
	blockSize := uint32(c.config.BlockSize)
	return (addr / blockSize) * blockSize
}

// lookupOrFill returns the cache line backing addr, filling it from the
// backing bus on a miss, and whether it was a hit.
func (c *CachedBus) lookupOrFill(addr uint32) ([]byte, uint32, bool) {
	blockAddr := c.blockAddr(addr)

	if block := c.directory.Lookup(0, uint64(blockAddr)); block != nil && block.IsValid {
		c.directory.Visit(block)
		return c.lines[c.lineIndex(block)], c.config.HitWaitStates, true
	}

	victim := c.directory.FindVictim(uint64(blockAddr))
	line := c.lines[c.lineIndex(victim)]

	for i := range line {
		byteAddr := blockAddr + uint32(i)
		v, _ := c.backing.ReadU8(byteAddr)
		line[i] = v
	}

	victim.Tag = uint64(blockAddr)
	victim.IsValid = true
	c.directory.Visit(victim)

	return line, c.config.MissWaitStates, false
}

func (c *CachedBus) ReadU8(addr uint32) (uint8, uint32) {
	line, wait, _ := c.lookupOrFill(addr)
	offset := addr % uint32(c.config.BlockSize)
	return line[offset], wait
}

func (c *CachedBus) WriteU8(addr uint32, value uint8) uint32 {
	line, wait, _ := c.lookupOrFill(addr)
	offset := addr % uint32(c.config.BlockSize)
	line[offset] = value
	c.backing.WriteU8(addr, value)
	return wait
}

func (c *CachedBus) ReadU16(addr uint32) (uint16, uint32) {
	lo, w1 := c.ReadU8(addr)
	hi, w2 := c.ReadU8(addr + 1)
	return uint16(hi)<<8 | uint16(lo), maxWaitStates(w1, w2)
}

func (c *CachedBus) WriteU16(addr uint32, value uint16) uint32 {
	w1 := c.WriteU8(addr, byte(value))
	w2 := c.WriteU8(addr+1, byte(value>>8))
	return maxWaitStates(w1, w2)
}

func maxWaitStates(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// IO space is never cached on real 8088/8086 systems; pass through.
func (c *CachedBus) IOReadU8(addr uint32) (uint8, uint32)  { return c.backing.IOReadU8(addr) }
func (c *CachedBus) IOWriteU8(addr uint32, v uint8) uint32 { return c.backing.IOWriteU8(addr, v) }

func (c *CachedBus) GetFlags(addr uint32) AttrFlags { return c.backing.GetFlags(addr) }
