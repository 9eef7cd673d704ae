package portrait

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrInvalidGeometry is returned when the face box is degenerate or the
	// computed crop collapses to zero area.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrUnsupportedColorMode is returned when the source image cannot be
	// converted to the color mode a policy requires.
	ErrUnsupportedColorMode = errors.New("unsupported color mode")
)

// Error carries the policy and the offending rectangle alongside one of the
// sentinel errors above.
type Error struct {
	Policy Policy
	Op     string
	Rect   image.Rectangle
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("portrait %s: %s %v: %v", e.Policy, e.Op, e.Rect, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func geometryError(p Policy, op string, r image.Rectangle) error {
	return &Error{Policy: p, Op: op, Rect: r, Err: ErrInvalidGeometry}
}
