package mesh

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/BioHazard786/solfa/internal/media"
)

// NewID returns a short base-36 id: the time in milliseconds followed by
// random digits.
func NewID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + strconv.FormatUint(rand.Uint64()>>16, 36)
}

// Capture acquires the local stream. Any failure is a denial; the room is
// never entered without a stream and capture is not retried.
func Capture(ctx context.Context, c media.Capturer) (*media.LocalStream, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureDenied, media.ErrNoSource)
	}
	s, err := c.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureDenied, err)
	}
	return s, nil
}

// IsUserFacing reports whether err should be shown to the user rather
// than only logged.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrCaptureDenied) || errors.Is(err, ErrIDUnavailable) || errors.Is(err, ErrJoinRejected)
}
