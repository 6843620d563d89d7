package area

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown areas and unknown or too-short
// external tokens. External callers must not be able to distinguish a
// denied area from a missing one.
var ErrNotFound = errors.New("area not found")

// AccessError is the typed denial for an attempted operation. It is a hard
// failure toward the caller and is never downgraded to a soft skip.
type AccessError struct {
	Op       Operation
	ActorID  int64  // internal actor, 0 if external
	External string // external actor descriptor, empty if internal
	AreaID   int64
}

func (e *AccessError) Error() string {
	actor := e.External
	if actor == "" {
		actor = fmt.Sprintf("user %d", e.ActorID)
	}
	return fmt.Sprintf("access denied: %s on area %d for %s", e.Op, e.AreaID, actor)
}

// ValidationError rejects a mutation at the API boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
