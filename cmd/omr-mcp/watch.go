package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/ironsheep/omr-scan-mcp/internal/config"
	"github.com/ironsheep/omr-scan-mcp/internal/live"
	"github.com/ironsheep/omr-scan-mcp/internal/omr"
)

// watchCmd reads sheets from a live frame source instead of serving MCP.
type watchCmd struct {
	Dir    string `arg:"--dir" help:"directory a camera app writes frames into" placeholder:"DIR"`
	Screen string `arg:"--screen" help:"screen region x,y,w,h to capture, or \"full\"" placeholder:"REGION"`
	Grade  bool   `arg:"--grade" help:"grade each sheet against the stored answer key"`
	Once   bool   `arg:"--once" help:"exit after the first sheet"`
}

// watchRecord is written to stdout, one JSON object per captured sheet.
type watchRecord struct {
	Time    time.Time        `json:"time"`
	Answers omr.AnswerMap    `json:"answers"`
	Summary string           `json:"summary"`
	Elapsed time.Duration    `json:"elapsed_ns"`
	Score   *omr.ScoreResult `json:"score,omitempty"`
	Warning string           `json:"warning,omitempty"`
}

func (w *watchCmd) source() (live.FrameSource, error) {
	switch {
	case w.Dir != "" && w.Screen != "":
		return nil, errors.New("watch: --dir and --screen are mutually exclusive")
	case w.Dir != "":
		return live.NewDirSource(w.Dir)
	case w.Screen == "full":
		return &live.ScreenSource{}, nil
	case w.Screen != "":
		r, err := parseRegion(w.Screen)
		if err != nil {
			return nil, err
		}
		return &live.ScreenSource{Region: r}, nil
	default:
		return nil, errors.New("watch: one of --dir or --screen is required")
	}
}

// parseRegion parses "x,y,w,h".
func parseRegion(s string) (image.Rectangle, error) {
	var x, y, w, h int
	if n, err := fmt.Sscanf(s, "%d,%d,%d,%d", &x, &y, &w, &h); err != nil || n != 4 {
		return image.Rectangle{}, fmt.Errorf("watch: bad screen region %q, want x,y,w,h", s)
	}
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, fmt.Errorf("watch: screen region %q has no area", s)
	}
	return image.Rect(x, y, x+w, y+h), nil
}

// watch captures sheets from src until ctx is cancelled, writing one record
// per sheet to out. A sheet that is still in view after its capture is
// reported once.
func watch(ctx context.Context, session *omr.Session, settings config.Live, src live.FrameSource, w *watchCmd, out io.Writer, logger *slog.Logger) error {
	sc := live.NewScanner(session, settings.ScannerConfig(session.Layout().Detection.ExpectedCount))
	enc := json.NewEncoder(out)

	var last omr.AnswerMap
	for {
		scan, err := sc.Run(ctx, src)
		if errors.Is(err, omr.ErrCaptureAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		sc.Reset()

		if last != nil && last.String() == scan.Answers.String() {
			logger.Debug("same sheet still in view, skipping")
			continue
		}
		last = scan.Answers

		rec := watchRecord{
			Time:    time.Now(),
			Answers: scan.Answers,
			Summary: scan.Answers.String(),
			Elapsed: scan.Elapsed,
		}
		if w.Grade {
			score := omr.Grade(session.Key(), scan.Answers)
			rec.Score = &score
			if err := score.Err(); err != nil {
				rec.Warning = err.Error()
			}
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		if w.Once {
			return src.Close()
		}
	}
}
