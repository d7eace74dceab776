package dsp

import (
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
)

// blockList is one immutable version of a chain's block order. readers counts
// the Process calls currently walking it.
type blockList struct {
	blocks  []Block
	readers atomic.Int32
}

// Chain is an ordered list of blocks applied first to last on the same
// buffer.
//
// Structural changes build a new list and publish it under mu; Process never
// takes mu. A Process call sees either the old list to completion or the new
// one, and removals wait for readers of the old list to drain, so a block is
// never processed after Remove returns it.
type Chain struct {
	mu  sync.Mutex // serialises structural mutation only
	cur atomic.Pointer[blockList]
}

// NewChain creates a chain holding blocks in order.
func NewChain(blocks ...Block) *Chain {
	c := &Chain{}
	c.cur.Store(&blockList{blocks: slices.Clone(blocks)})
	return c
}

// acquire pins the current list. The re-check makes sure a writer that
// already looked at the reader count of a retired list cannot miss us.
func (c *Chain) acquire() *blockList {
	for {
		l := c.cur.Load()
		l.readers.Add(1)
		if c.cur.Load() == l {
			return l
		}
		l.readers.Add(-1)
	}
}

// Process runs every active block in order. Inactive blocks are skipped and
// keep their state.
func (c *Chain) Process(left, right []float32) {
	l := c.acquire()
	for _, b := range l.blocks {
		if b.Active() {
			b.Process(left, right)
		}
	}
	l.readers.Add(-1)
}

// Len returns the number of blocks.
func (c *Chain) Len() int {
	return len(c.cur.Load().blocks)
}

// Blocks returns a copy of the block order.
func (c *Chain) Blocks() []Block {
	return slices.Clone(c.cur.Load().blocks)
}

// At returns the block at index i.
func (c *Chain) At(i int) (Block, bool) {
	blocks := c.cur.Load().blocks
	if i < 0 || i >= len(blocks) {
		return nil, false
	}
	return blocks[i], true
}

// Index returns the position of b, or -1.
func (c *Chain) Index(b Block) int {
	return slices.Index(c.cur.Load().blocks, b)
}

// Add appends b to the end of the chain.
func (c *Chain) Add(b Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.cur.Load().blocks
	next := make([]Block, 0, len(old)+1)
	next = append(next, old...)
	next = append(next, b)
	c.publish(next)
}

// Insert places b at index i, shifting later blocks back.
func (c *Chain) Insert(i int, b Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.cur.Load().blocks
	if i < 0 || i > len(old) {
		return ErrIndex
	}
	c.publish(slices.Insert(slices.Clone(old), i, b))
	return nil
}

// Remove takes b out of the chain. It returns ErrNotFound, and changes
// nothing, if b is not in the chain.
func (c *Chain) Remove(b Block) error {
	c.mu.Lock()
	old := c.cur.Load()
	i := slices.Index(old.blocks, b)
	if i < 0 {
		c.mu.Unlock()
		return ErrNotFound
	}
	c.publish(slices.Delete(slices.Clone(old.blocks), i, i+1))
	c.mu.Unlock()

	waitReaders(old)
	return nil
}

// RemoveAt takes the block at index i out of the chain and hands it back.
func (c *Chain) RemoveAt(i int) (Block, error) {
	c.mu.Lock()
	old := c.cur.Load()
	if i < 0 || i >= len(old.blocks) {
		c.mu.Unlock()
		return nil, ErrIndex
	}
	b := old.blocks[i]
	c.publish(slices.Delete(slices.Clone(old.blocks), i, i+1))
	c.mu.Unlock()

	waitReaders(old)
	return b, nil
}

// Reorder moves the block at from so that it ends up at index to.
func (c *Chain) Reorder(from, to int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.cur.Load().blocks
	if from < 0 || from >= len(old) || to < 0 || to >= len(old) {
		return ErrIndex
	}
	if from == to {
		return nil
	}
	next := slices.Clone(old)
	b := next[from]
	next = slices.Delete(next, from, from+1)
	next = slices.Insert(next, to, b)
	c.publish(next)
	return nil
}

// Clear empties the chain and returns the removed blocks.
func (c *Chain) Clear() []Block {
	c.mu.Lock()
	old := c.cur.Load()
	c.publish(nil)
	c.mu.Unlock()

	waitReaders(old)
	return old.blocks
}

// Replace swaps the whole block list in one step.
func (c *Chain) Replace(blocks []Block) []Block {
	c.mu.Lock()
	old := c.cur.Load()
	c.publish(slices.Clone(blocks))
	c.mu.Unlock()

	waitReaders(old)
	return old.blocks
}

// Reset clears the state of every block that supports it. Call it only while
// the chain is not being processed.
func (c *Chain) Reset() {
	for _, b := range c.cur.Load().blocks {
		if r, ok := b.(Resetter); ok {
			r.Reset()
		}
	}
}

// publish must be called with mu held.
func (c *Chain) publish(blocks []Block) {
	c.cur.Store(&blockList{blocks: blocks})
}

func waitReaders(l *blockList) {
	for l.readers.Load() != 0 {
		runtime.Gosched()
	}
}
