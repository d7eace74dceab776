package dsp

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// tagBlock appends its tag to every sample so tests can read the order in
// which blocks ran.
type tagBlock struct {
	base
	tag float32
}

func newTag(tag float32) *tagBlock {
	b := &tagBlock{tag: tag}
	b.base.init()
	return b
}

func (b *tagBlock) TypeName() string { return "tag" }

func (b *tagBlock) Process(left, right []float32) {
	for i := range left {
		left[i] = left[i]*10 + b.tag
	}
	for i := range right {
		right[i] = right[i]*10 + b.tag
	}
}

func TestChainOrder(t *testing.T) {
	a, b, c := newTag(1), newTag(2), newTag(3)
	ch := NewChain(a, b)
	ch.Add(c)

	l, r := []float32{0}, []float32{0}
	ch.Process(l, r)
	if l[0] != 123 || r[0] != 123 {
		t.Fatalf("got %v/%v, want 123", l[0], r[0])
	}

	if err := ch.Reorder(2, 0); err != nil {
		t.Fatal(err)
	}
	l[0], r[0] = 0, 0
	ch.Process(l, r)
	if l[0] != 312 {
		t.Fatalf("after reorder got %v, want 312", l[0])
	}

	if err := ch.Insert(1, newTag(9)); err != nil {
		t.Fatal(err)
	}
	l[0] = 0
	ch.Process(l, r)
	if l[0] != 3912 {
		t.Fatalf("after insert got %v, want 3912", l[0])
	}
}

func TestChainSkipsInactive(t *testing.T) {
	a, b := newTag(1), newTag(2)
	ch := NewChain(a, b)
	a.SetActive(false)

	l, r := []float32{0}, []float32{0}
	ch.Process(l, r)
	if l[0] != 2 {
		t.Fatalf("got %v, want 2", l[0])
	}
}

func TestChainRemoveNotFound(t *testing.T) {
	a := newTag(1)
	ch := NewChain(a)
	if err := ch.Remove(newTag(2)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Remove(stranger) = %v, want ErrNotFound", err)
	}
	if ch.Len() != 1 {
		t.Fatalf("chain changed on failed remove: Len() = %d", ch.Len())
	}
	if err := ch.Remove(a); err != nil {
		t.Fatal(err)
	}
	if ch.Len() != 0 {
		t.Fatalf("Len() = %d after remove", ch.Len())
	}
}

func TestChainIndexErrors(t *testing.T) {
	ch := NewChain(newTag(1), newTag(2))
	tests := []struct {
		name string
		err  error
	}{
		{"reorder from", ch.Reorder(-1, 0)},
		{"reorder to", ch.Reorder(0, 2)},
		{"insert", ch.Insert(3, newTag(3))},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, ErrIndex) {
			t.Errorf("%s: err = %v, want ErrIndex", tt.name, tt.err)
		}
	}
	if _, err := ch.RemoveAt(5); !errors.Is(err, ErrIndex) {
		t.Errorf("RemoveAt(5) = %v", err)
	}
	if ch.Len() != 2 {
		t.Fatalf("Len() = %d", ch.Len())
	}
}

func TestChainBlocksIsCopy(t *testing.T) {
	a := newTag(1)
	ch := NewChain(a)
	blocks := ch.Blocks()
	blocks[0] = newTag(7)
	if got, _ := ch.At(0); got != Block(a) {
		t.Fatal("Blocks() aliases chain storage")
	}
}

// canary records any Process call that lands after it was taken out of the
// chain.
type canary struct {
	base
	removed  atomic.Bool
	violated *atomic.Bool
}

func (c *canary) TypeName() string { return "canary" }

func (c *canary) Process(left, right []float32) {
	if c.removed.Load() {
		c.violated.Store(true)
	}
}

// TestChainMutationAtomicity hammers structural changes while another
// goroutine keeps processing, and checks removed blocks are never run.
// Run with: go test -race -run TestChainMutationAtomicity ./dsp
func TestChainMutationAtomicity(t *testing.T) {
	ch := NewChain(NewGain(1))
	var violated atomic.Bool
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Go(func() {
		l := make([]float32, 64)
		r := make([]float32, 64)
		for {
			select {
			case <-stop:
				return
			default:
			}
			ch.Process(l, r)
		}
	})

	for i := 0; i < 2000; i++ {
		c := &canary{violated: &violated}
		c.base.init()
		ch.Add(c)
		if i%2 == 0 {
			if err := ch.Remove(c); err != nil {
				t.Fatal(err)
			}
		} else {
			if _, err := ch.RemoveAt(ch.Index(c)); err != nil {
				t.Fatal(err)
			}
		}
		c.removed.Store(true)
	}
	close(stop)
	wg.Wait()

	if violated.Load() {
		t.Fatal("a block was processed after its removal returned")
	}
	if ch.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ch.Len())
	}
}

// TestChainReorderWhileProcessing moves blocks around under a running
// Process. Every pass must see some complete ordering of the three tags,
// and canaries added and removed in between must never run late.
func TestChainReorderWhileProcessing(t *testing.T) {
	ch := NewChain(newTag(1), newTag(2), newTag(3))
	valid := map[float32]bool{123: true, 132: true, 213: true, 231: true, 312: true, 321: true}
	var violated, torn atomic.Bool
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Go(func() {
		l := make([]float32, 16)
		r := make([]float32, 16)
		for {
			select {
			case <-stop:
				return
			default:
			}
			clear(l)
			clear(r)
			ch.Process(l, r)
			if !valid[l[0]] || l[0] != r[len(r)-1] {
				torn.Store(true)
			}
		}
	})

	for i := 0; i < 2000; i++ {
		if err := ch.Reorder(i%3, (i+1)%3); err != nil {
			t.Fatal(err)
		}
		c := &canary{violated: &violated}
		c.base.init()
		if err := ch.Insert(i%4, c); err != nil {
			t.Fatal(err)
		}
		if err := ch.Reorder(ch.Index(c), 3); err != nil {
			t.Fatal(err)
		}
		if err := ch.Remove(c); err != nil {
			t.Fatal(err)
		}
		c.removed.Store(true)
	}
	close(stop)
	wg.Wait()

	if torn.Load() {
		t.Fatal("Process saw a partial reorder")
	}
	if violated.Load() {
		t.Fatal("a block was processed after its removal returned")
	}
	if ch.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ch.Len())
	}
}

func TestChainClear(t *testing.T) {
	ch := NewChain(newTag(1), newTag(2))
	removed := ch.Clear()
	if len(removed) != 2 || ch.Len() != 0 {
		t.Fatalf("Clear() returned %d, Len() = %d", len(removed), ch.Len())
	}
	l, r := []float32{5}, []float32{5}
	ch.Process(l, r)
	if l[0] != 5 {
		t.Fatal("empty chain changed the buffer")
	}
}
