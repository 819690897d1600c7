// Package recognize extracts advisory fields (date, amount) from evidence images.
//
// Recognition never blocks a write: every implementation may fail or be
// absent, and callers proceed without fields when it does.
package recognize

import (
	"context"
	"fmt"

	"github.com/attendsync/attendsync/internal/schema"
)

// Recognizer turns a JPEG image into recognized fields.
type Recognizer interface {
	Recognize(ctx context.Context, jpeg []byte) (*schema.RecognizedFields, error)
}

// Noop is the recognizer used when the feature is not configured.
type Noop struct{}

// Recognize always reports the feature as unavailable.
func (Noop) Recognize(context.Context, []byte) (*schema.RecognizedFields, error) {
	return nil, schema.ErrRecognitionUnavailable
}

// Func adapts a plain function to Recognizer.
type Func func(ctx context.Context, jpeg []byte) (*schema.RecognizedFields, error)

// Recognize calls f.
func (f Func) Recognize(ctx context.Context, jpeg []byte) (*schema.RecognizedFields, error) {
	return f(ctx, jpeg)
}

// unavailable wraps err so callers can tell advisory failures apart.
func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", schema.ErrRecognitionUnavailable, fmt.Sprintf(format, args...))
}
