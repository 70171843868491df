package storage

import (
	"sync"

	"github.com/wippyai/extbind/abi"
)

// Table maps instance pointers handed to the foreign runtime to the storage
// that backs them. Pointers pack a slot index with the slot's generation so a
// pointer to a freed slot is never mistaken for the slot's next occupant.
type Table struct {
	slots     []slot
	freeList  []uint32
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
}

type slot struct {
	value any
	class string
	// freed is the class of the occupant released at generation gen-1.
	freed string
	gen   uint32
	live  bool
}

// freedClass names the class a stale pointer of generation gen referred to,
// or "" when the slot has been released again since.
func (s *slot) freedClass(gen uint32) string {
	if gen+1 == s.gen {
		return s.freed
	}
	return ""
}

type lookupStatus uint8

const (
	statusLive lookupStatus = iota
	statusFreed
	statusUnknown
)

var defaultTable = NewTable()

// Default returns the process-wide table.
func Default() *Table {
	return defaultTable
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		slots:    make([]slot, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

func pack(idx, gen uint32) abi.ClassInstancePtr {
	return abi.ClassInstancePtr(uint64(gen)<<32 | uint64(idx+1))
}

func unpack(ptr abi.ClassInstancePtr) (idx, gen uint32, ok bool) {
	v := uint64(ptr)
	lo := uint32(v)
	if lo == 0 {
		return 0, 0, false
	}
	return lo - 1, uint32(v >> 32), true
}

func (t *Table) insert(class string, value any) abi.ClassInstancePtr {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.freeList); n > 0 {
		idx := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		s := &t.slots[idx]
		s.value = value
		s.class = class
		s.live = true
		return pack(idx, s.gen)
	}

	t.slots = append(t.slots, slot{value: value, class: class, live: true})
	return pack(uint32(len(t.slots)-1), 0)
}

// lookup returns the value behind ptr and its class. For a freed pointer
// the class is that of the released occupant when still known.
func (t *Table) lookup(ptr abi.ClassInstancePtr) (any, string, lookupStatus) {
	idx, gen, ok := unpack(ptr)
	if !ok {
		return nil, "", statusUnknown
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(idx) >= len(t.slots) {
		return nil, "", statusUnknown
	}
	s := &t.slots[idx]
	switch {
	case s.live && s.gen == gen:
		return s.value, s.class, statusLive
	case gen < s.gen:
		return nil, s.freedClass(gen), statusFreed
	}
	return nil, "", statusUnknown
}

func (t *Table) remove(ptr abi.ClassInstancePtr) (any, string, lookupStatus) {
	idx, gen, ok := unpack(ptr)
	if !ok {
		return nil, "", statusUnknown
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if int(idx) >= len(t.slots) {
		return nil, "", statusUnknown
	}
	s := &t.slots[idx]
	if !s.live || s.gen != gen {
		if gen < s.gen {
			return nil, s.freedClass(gen), statusFreed
		}
		return nil, "", statusUnknown
	}

	value, class := s.value, s.class
	s.value = nil
	s.freed = class
	s.class = ""
	s.live = false
	s.gen++
	t.freeList = append(t.freeList, idx)
	return value, class, statusLive
}

// Contains reports whether ptr addresses a live instance.
func (t *Table) Contains(ptr abi.ClassInstancePtr) bool {
	_, _, st := t.lookup(ptr)
	return st == statusLive
}

// Len returns the number of live instances.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, s := range t.slots {
		if s.live {
			count++
		}
	}
	return count
}

// Each iterates over live instances with their class names.
func (t *Table) Each(fn func(abi.ClassInstancePtr, string) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, s := range t.slots {
		if s.live {
			if !fn(pack(uint32(i), s.gen), s.class) {
				break
			}
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnInstanceEvent(e)
	}
}
