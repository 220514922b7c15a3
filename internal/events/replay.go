package events

import (
	"sort"
	"sync"
)

// replayRing keeps the most recent sequenced events.
type replayRing struct {
	mu     sync.RWMutex
	buf    []Event
	next   int
	full   bool
	maxSeq uint64
}

func newReplayRing(size int) *replayRing {
	return &replayRing{buf: make([]Event, size)}
}

func (r *replayRing) add(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = event
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	if event.Seq > r.maxSeq {
		r.maxSeq = event.Seq
	}
}

func (r *replayRing) last() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxSeq
}

func (r *replayRing) snapshot() []Event {
	if !r.full {
		out := make([]Event, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]Event, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

func (r *replayRing) since(seq uint64) ([]Event, error) {
	r.mu.RLock()
	held := r.snapshot()
	maxSeq := r.maxSeq
	r.mu.RUnlock()

	if seq >= maxSeq {
		return []Event{}, nil
	}
	sort.Slice(held, func(i, j int) bool { return held[i].Seq < held[j].Seq })

	// Sequences are global, so a buffer that starts after seq+1 has lost
	// events the caller never saw.
	if len(held) == 0 || held[0].Seq > seq+1 {
		return nil, ErrReplayGap
	}
	out := make([]Event, 0, len(held))
	for _, e := range held {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out, nil
}
