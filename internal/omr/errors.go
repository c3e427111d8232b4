package omr

import (
	"errors"

	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
)

var (
	// ErrDegenerateGeometry is returned when the detected corners are
	// (nearly) colinear and no usable transform exists.
	ErrDegenerateGeometry = geometry.ErrDegenerate

	// ErrEmptyKey is reported when grading against a key with no entries.
	ErrEmptyKey = errors.New("answer key is empty")

	// ErrCaptureAborted is returned when a live capture is stopped before
	// a sheet has been read.
	ErrCaptureAborted = errors.New("capture aborted")

	// ErrWrongLayout is returned by operations that only apply to one
	// layout kind.
	ErrWrongLayout = errors.New("operation not supported by this layout")
)
