package obs

import "errors"

var (
	// ErrConfig marks a disagreement between declared and computed layout widths
	ErrConfig = errors.New("configuration mismatch")

	// ErrMalformedBuffer marks a buffer whose length does not fit the layout
	ErrMalformedBuffer = errors.New("malformed observation buffer")

	// ErrInvalidCategory marks a decoded id outside its domain
	ErrInvalidCategory = errors.New("invalid category code")
)
