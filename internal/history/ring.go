package history

// Ring is a fixed-capacity circular buffer of formatted sample records.
// It is owned by exactly one worker and is not safe for concurrent use;
// the owning goroutine is the only reader and writer.
type Ring struct {
	entries []string
	cap     int
	next    int // overwrite index once full
}

// NewRing creates a ring with the given capacity. Capacity must be
// positive; anything else falls back to 1 so Add can never panic.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		entries: make([]string, 0, capacity),
		cap:     capacity,
	}
}

// Add appends an entry. Under capacity it grows the buffer; at capacity
// it overwrites the physically-oldest slot and advances the write index
// modulo capacity. Always succeeds, O(1).
func (r *Ring) Add(entry string) {
	if len(r.entries) < r.cap {
		r.entries = append(r.entries, entry)
		return
	}
	r.entries[r.next] = entry
	r.next = (r.next + 1) % r.cap
}

// All returns the retained entries in physical slot order. Once the
// buffer has wrapped this is NOT chronological: the timeline has a
// discontinuity at the current write index. Downstream consumers have
// always seen it this way; use AllChronological for strict ordering.
func (r *Ring) All() []string {
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

// AllChronological returns the retained entries oldest-first, re-rotated
// at the write index.
func (r *Ring) AllChronological() []string {
	if len(r.entries) < r.cap {
		return r.All()
	}
	out := make([]string, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	return len(r.entries)
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int {
	return r.cap
}
