package simple

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/kayua/causalnet/internal/errs"
)

// Semantic is a user-selectable delivery reliability mode.
type Semantic string

const (
	AtMostOnce  Semantic = "at_most_once"
	AtLeastOnce Semantic = "at_least_once"
	ExactlyOnce Semantic = "exactly_once"
)

// ParseSemantic validates a configuration string against the three known
// modes, failing with InvalidConfig on anything else.
func ParseSemantic(s string) (Semantic, error) {
	switch Semantic(s) {
	case AtMostOnce, AtLeastOnce, ExactlyOnce:
		return Semantic(s), nil
	default:
		return "", fmt.Errorf("%w: unknown semantic %q", errs.ErrInvalidConfig, s)
	}
}

// NewExactlyOnceID mints a sender-chosen id for the exactly_once semantic.
// The spec leaves id assignment to the caller; this folds the first 8
// bytes of a random uuid into a uint64 so a caller with no better idea of
// their own (a sequence number, say) still gets a value collisions are
// vanishingly unlikely to repeat across the process's lifetime.
func NewExactlyOnceID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}
