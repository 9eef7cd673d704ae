package rembg

import (
	"context"
	"errors"
)

var (
	ErrUnknownModel = errors.New("unknown model")
	ErrBusy         = errors.New("background removal queue is full")
)

// Options are the knobs the inference backends understand.
type Options struct {
	AlphaMatting    bool
	PostProcessMask bool
}

func DefaultOptions() Options {
	return Options{PostProcessMask: true}
}

// Remover strips the background from an encoded image and returns a PNG
// with transparency.
type Remover interface {
	Remove(ctx context.Context, image []byte, opts Options) ([]byte, error)
}
