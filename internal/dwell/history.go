package dwell

import (
	"time"

	"github.com/gosight/gosight/gaze/internal/target"
)

// HistoryEntry books one sample's duration against a target
type HistoryEntry struct {
	Target    target.ID
	Timestamp time.Duration
	Duration  time.Duration
}

// History is an insertion-ordered queue of recent samples
type History struct {
	entries []HistoryEntry
	head    int
}

// Push appends e at the back
func (h *History) Push(e HistoryEntry) {
	h.entries = append(h.entries, e)
}

// Len returns the number of queued entries
func (h *History) Len() int {
	return len(h.entries) - h.head
}

// Front returns the oldest entry
func (h *History) Front() (HistoryEntry, bool) {
	if h.Len() == 0 {
		return HistoryEntry{}, false
	}
	return h.entries[h.head], true
}

// PopFront removes and returns the oldest entry
func (h *History) PopFront() HistoryEntry {
	e := h.entries[h.head]
	h.entries[h.head] = HistoryEntry{}
	h.head++
	if h.head > 64 && h.head*2 >= len(h.entries) {
		h.compact()
	}
	return e
}

// Purge removes every entry booked against id and returns how many went
func (h *History) Purge(id target.ID) int {
	kept := h.entries[:0]
	removed := 0
	for _, e := range h.entries[h.head:] {
		if e.Target == id {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(h.entries[len(kept):])
	h.entries = kept
	h.head = 0
	return removed
}

// Sum totals the durations booked against id
func (h *History) Sum(id target.ID) time.Duration {
	var total time.Duration
	for _, e := range h.entries[h.head:] {
		if e.Target == id {
			total += e.Duration
		}
	}
	return total
}

// Entries returns a copy of the queue, oldest first
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, h.Len())
	copy(out, h.entries[h.head:])
	return out
}

// Clear empties the queue
func (h *History) Clear() {
	h.entries = nil
	h.head = 0
}

func (h *History) compact() {
	n := copy(h.entries, h.entries[h.head:])
	clear(h.entries[n:])
	h.entries = h.entries[:n]
	h.head = 0
}
