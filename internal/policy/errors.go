package policy

import "errors"

var (
	// ErrState marks a recurrent state that does not fit the batch or hidden width
	ErrState = errors.New("recurrent state mismatch")

	// ErrActionSpace marks logits or actions that do not fit the action space
	ErrActionSpace = errors.New("action space mismatch")
)
