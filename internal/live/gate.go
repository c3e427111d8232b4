package live

import (
	"log/slog"
	"math"
	"sort"

	"github.com/ironsheep/omr-scan-mcp/internal/detection"
	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
	"github.com/ironsheep/omr-scan-mcp/internal/layout"
)

// State enumerates the stability gate's states.
type State int

const (
	StateSearching State = iota
	StateTracking
	StateStable
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateTracking:
		return "tracking"
	case StateStable:
		return "stable"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// GateConfig tunes the stability gate.
type GateConfig struct {
	// ExpectedCount is the number of anchors a valid sample carries.
	ExpectedCount int

	// RequiredStableFrames is how many consecutive low-motion comparisons
	// trigger a capture. The first valid sample is the baseline, so the gate
	// triggers on sample RequiredStableFrames+1.
	RequiredStableFrames int

	// MaxDisplacement is the largest per-anchor movement, in preview pixels,
	// that still counts as stable.
	MaxDisplacement float64
}

// DefaultGateConfig returns the gate settings for a layout expecting count anchors.
func DefaultGateConfig(count int) GateConfig {
	return GateConfig{
		ExpectedCount:        count,
		RequiredStableFrames: 7,
		MaxDisplacement:      8,
	}
}

// Gate is the stability state machine. It is not safe for concurrent use;
// the Scanner serializes access.
type Gate struct {
	cfg    GateConfig
	logger *slog.Logger

	state  State
	last   []geometry.Point
	stable int
	moved  float64
}

// NewGate returns a gate in StateSearching.
func NewGate(cfg GateConfig, logger *slog.Logger) *Gate {
	if cfg.RequiredStableFrames < 1 {
		cfg.RequiredStableFrames = 1
	}
	return &Gate{cfg: cfg, logger: logger, moved: math.NaN()}
}

// Observe feeds one sample's ordered anchors to the gate and returns the new
// state. nil, or a slice of the wrong length, means no valid sheet was seen.
// A triggered gate ignores samples until Reset.
func (g *Gate) Observe(anchors []geometry.Point) State {
	if g.state == StateTriggered {
		return g.state
	}

	if len(anchors) == 0 || len(anchors) != g.cfg.ExpectedCount {
		g.last, g.stable, g.moved = nil, 0, math.NaN()
		g.transition(StateSearching)
		return g.state
	}

	next := make([]geometry.Point, len(anchors))
	copy(next, anchors)

	if g.last == nil {
		g.last, g.stable, g.moved = next, 0, math.NaN()
		g.transition(StateTracking)
		return g.state
	}

	g.moved = geometry.MaxDisplacement(g.last, next)
	g.last = next
	if g.moved >= g.cfg.MaxDisplacement {
		g.stable = 0
		g.transition(StateTracking)
		return g.state
	}

	g.stable++
	if g.stable >= g.cfg.RequiredStableFrames {
		g.transition(StateTriggered)
	} else {
		g.transition(StateStable)
	}
	return g.state
}

// Reset returns the gate to StateSearching with no baseline.
func (g *Gate) Reset() {
	g.last, g.stable, g.moved = nil, 0, math.NaN()
	g.transition(StateSearching)
}

// State returns the current state.
func (g *Gate) State() State { return g.state }

// StableCount returns the number of consecutive low-motion comparisons.
func (g *Gate) StableCount() int { return g.stable }

// LastDisplacement returns the movement measured by the latest comparison,
// or NaN when the latest sample had nothing to compare against.
func (g *Gate) LastDisplacement() float64 { return g.moved }

func (g *Gate) transition(next State) {
	prev := g.state
	g.state = next
	if prev != next && g.logger != nil {
		g.logger.Debug("gate state transition", "from", prev.String(), "to", next.String(), "stable", g.stable)
	}
}

// Anchors orders detected features the way the gate compares them: the four
// fiducial centres as top-left, top-right, bottom-left, bottom-right, and
// table centres left to right. It returns nil when the features cannot be
// ordered.
func Anchors(features []detection.Feature, kind layout.Kind) []geometry.Point {
	pts := detection.Points(features)
	switch kind {
	case layout.KindFiducial:
		q, err := geometry.OrderCorners(pts)
		if err != nil {
			return nil
		}
		return q.Points()
	default:
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
		return pts
	}
}
