// Package vclock implements vector clocks for causal ordering in a fixed-size
// group of processes: local increment, merge with a received vector, and the
// expected-clock predicate that decides whether a message is the next
// causally deliverable one from a given sender.
package vclock

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kayua/causalnet/internal/errs"
)

// Clock is a process's vector clock: one non-negative counter per process in
// the group, indexed by process id. The zero value is not usable; build one
// with New.
type Clock struct {
	mu        sync.Mutex
	vector    []uint64
	processID int
}

// New creates a Clock of length numProcesses owned by processID, with every
// slot initialized to zero.
func New(numProcesses, processID int) (*Clock, error) {
	if numProcesses <= 0 {
		return nil, fmt.Errorf("%w: num_processes must be > 0, got %d", errs.ErrInvalidConfig, numProcesses)
	}
	if processID < 0 || processID >= numProcesses {
		return nil, fmt.Errorf("%w: process_id %d out of range [0,%d)", errs.ErrInvalidConfig, processID, numProcesses)
	}
	return &Clock{
		vector:    make([]uint64, numProcesses),
		processID: processID,
	}, nil
}

// ProcessID returns the slot this clock owns.
func (c *Clock) ProcessID() int {
	return c.processID
}

// Len returns the vector's length (the group size N).
func (c *Clock) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.vector)
}

// Increment adds 1 to the clock's own slot. Called once per locally
// originated send and once per locally delivered receive (via Merge,
// followed by an explicit increment at the call site — see Merge).
func (c *Clock) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vector[c.processID]++
}

// Snapshot returns a copy of the current vector, safe for the caller to
// retain and mutate.
func (c *Clock) Snapshot() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.vector))
	copy(out, c.vector)
	return out
}

// Encode returns the stable wire representation of the current vector:
// comma-separated decimal integers, no brackets.
func (c *Clock) Encode() string {
	return Encode(c.Snapshot())
}

// Encode serializes a vector as comma-separated decimal integers.
func Encode(vector []uint64) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, ",")
}

// Decode parses a serialized vector of exactly n elements. Surrounding
// '[' and ']' are tolerated; elements are separated by commas and must be
// non-negative integers, matching what Encode produces.
func Decode(s string, n int) ([]uint64, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if trimmed == "" {
		if n == 0 {
			return []uint64{}, nil
		}
		return nil, fmt.Errorf("%w: empty vector, expected %d elements", errs.ErrMalformedVector, n)
	}

	fields := strings.Split(trimmed, ",")
	if len(fields) != n {
		return nil, fmt.Errorf("%w: expected %d elements, got %d", errs.ErrMalformedVector, n, len(fields))
	}

	out := make([]uint64, n)
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d (%q) is not a non-negative integer", errs.ErrMalformedVector, i, f)
		}
		out[i] = v
	}
	return out, nil
}

// Merge sets each slot to max(local[i], received[i]). This is rule (a) from
// the causal-delivery protocol: the own slot is NOT additionally bumped
// here. Callers that need the delivery-time own-slot advance (the causal
// layer) call Increment explicitly after a successful Merge.
func (c *Clock) Merge(received []uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(received) != len(c.vector) {
		return fmt.Errorf("%w: received vector has %d elements, clock has %d", errs.ErrMalformedVector, len(received), len(c.vector))
	}
	for i, v := range received {
		if v > c.vector[i] {
			c.vector[i] = v
		}
	}
	return nil
}

// MergeFidge applies the same max-merge as Merge and additionally bumps the
// own slot by one. This is the "fidge-style" receive rule preserved only for
// standalone demo/logging clocks that are not used for the causal-delivery
// predicate — ExpectedFor is only consistent with the plain Merge rule, so
// CausalProcess must never call MergeFidge.
func (c *Clock) MergeFidge(received []uint64) error {
	if err := c.Merge(received); err != nil {
		return err
	}
	c.Increment()
	return nil
}

// ExpectedFor returns the local vector with slot senderID incremented by 1:
// the predicate used to identify the next causally deliverable message from
// that sender.
func (c *Clock) ExpectedFor(senderID int) ([]uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if senderID < 0 || senderID >= len(c.vector) {
		return nil, fmt.Errorf("%w: sender_id %d out of range [0,%d)", errs.ErrInvalidConfig, senderID, len(c.vector))
	}
	out := make([]uint64, len(c.vector))
	copy(out, c.vector)
	out[senderID]++
	return out, nil
}

// Ready reports whether a received vector from senderID is the next
// causally deliverable message: senderID's slot must be exactly one ahead
// of local, and every other slot of received must be <= local's.
func (c *Clock) Ready(received []uint64, senderID int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(received) != len(c.vector) {
		return false, fmt.Errorf("%w: received vector has %d elements, clock has %d", errs.ErrMalformedVector, len(received), len(c.vector))
	}
	if senderID < 0 || senderID >= len(c.vector) {
		return false, fmt.Errorf("%w: sender_id %d out of range [0,%d)", errs.ErrInvalidConfig, senderID, len(c.vector))
	}
	if received[senderID] != c.vector[senderID]+1 {
		return false, nil
	}
	for i, v := range received {
		if i == senderID {
			continue
		}
		if v > c.vector[i] {
			return false, nil
		}
	}
	return true, nil
}

// Equal reports whether two vectors have the same length and elements.
func Equal(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
