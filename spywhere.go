// Package spywhere finds pre-defined target regions on an image from the
// pointer events of a user clicking on it.
//
// Basic usage:
//
//	package main
//
//	import (
//		"fmt"
//		"log"
//
//		"github.com/menta2k/spywhere"
//		"github.com/menta2k/spywhere/pkg/targets"
//		"github.com/menta2k/spywhere/pkg/types"
//	)
//
//	func main() {
//		cat, err := targets.New(nil).Load("targets.json")
//		if err != nil {
//			log.Fatal(err)
//		}
//		finder := spywhere.New(cat)
//
//		frame := types.ImageFrame{
//			Left: 0, Top: 64,
//			RenderedWidth: 1280, RenderedHeight: 720,
//			NaturalWidth: 3840, NaturalHeight: 2160,
//		}
//		res, err := finder.Click(0, types.PagePoint{X: 412, Y: 380}, 1.5, frame)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("hit=%v polygon=%d solved=%v\n", res.Hit, res.Polygon, res.State.Full)
//	}
//
// The package is a thin composition of three parts:
//
// 1. Coords (pkg/coords): page space to image-intrinsic space and back
// 2. Hittest (pkg/hittest): even-odd point-in-polygon tests, first match wins
// 3. Progress (pkg/progress): per-target partial and full solved state
//
// Coords and hittest are pure functions. The Finder adds the input guards they
// leave to their callers and records hits in a progress.Tracker.
package spywhere

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/menta2k/spywhere/pkg/coords"
	"github.com/menta2k/spywhere/pkg/hittest"
	"github.com/menta2k/spywhere/pkg/progress"
	"github.com/menta2k/spywhere/pkg/targets"
	"github.com/menta2k/spywhere/pkg/types"
)

// Version of the spywhere library
const Version = "1.0.0"

var (
	// ErrUnknownTarget is returned for a target index outside the catalogue
	ErrUnknownTarget = errors.New("unknown target")
	// ErrInvalidFrame is returned when the frame has a non-positive dimension
	ErrInvalidFrame = errors.New("image frame dimensions must be positive")
	// ErrInvalidZoom is returned when the zoom factor is not a positive finite number
	ErrInvalidZoom = errors.New("zoom factor must be positive and finite")
)

// Finder resolves clicks against a target catalogue and tracks progress
type Finder struct {
	catalogue *targets.Catalogue
	tracker   *progress.Tracker
	logger    *slog.Logger
}

// Option configures a Finder
type Option func(*Finder)

// WithLogger sets the logger used for hit and solve events
func WithLogger(logger *slog.Logger) Option {
	return func(f *Finder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithTracker makes the Finder record into an existing tracker, e.g. one restored from disk
func WithTracker(tracker *progress.Tracker) Option {
	return func(f *Finder) {
		if tracker != nil {
			f.tracker = tracker
		}
	}
}

// New creates a Finder over catalogue
func New(catalogue *targets.Catalogue, opts ...Option) *Finder {
	if catalogue == nil {
		catalogue = targets.NewCatalogue(nil)
	}
	f := &Finder{
		catalogue: catalogue,
		tracker:   progress.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ClickEvent is one recorded pointer click together with the layout it happened in
type ClickEvent struct {
	Target int              `json:"target"`
	Page   types.PagePoint  `json:"page"`
	Zoom   float64          `json:"zoom"`
	Frame  types.ImageFrame `json:"frame"`
}

// ClickResult describes the outcome of one click
type ClickResult struct {
	Target       int                   `json:"target"`
	Point        types.ImagePoint      `json:"point"`
	Polygon      int                   `json:"polygon"`
	Hit          bool                  `json:"hit"`
	AlreadyFound bool                  `json:"already_found,omitempty"`
	JustSolved   bool                  `json:"just_solved,omitempty"`
	State        progress.SolvedTarget `json:"state"`
}

// Targets returns the catalogue the Finder works on
func (f *Finder) Targets() *targets.Catalogue {
	return f.catalogue
}

// Progress returns the tracker holding solved state
func (f *Finder) Progress() *progress.Tracker {
	return f.tracker
}

// Locate converts a page-space click into image-intrinsic coordinates after
// checking that the frame and zoom make the mapping well defined
func (f *Finder) Locate(page types.PagePoint, zoom float64, frame types.ImageFrame) (types.ImagePoint, error) {
	if !frame.Valid() {
		return types.ImagePoint{}, ErrInvalidFrame
	}
	if !(zoom > 0) || math.IsInf(zoom, 0) {
		return types.ImagePoint{}, fmt.Errorf("%w: %v", ErrInvalidZoom, zoom)
	}
	return coords.ToImageSpace(page, zoom, frame), nil
}

// HitTest returns the first polygon of target containing p
func (f *Finder) HitTest(target int, p types.ImagePoint) (int, bool, error) {
	t, ok := f.catalogue.Get(target)
	if !ok {
		return -1, false, fmt.Errorf("%w: %d", ErrUnknownTarget, target)
	}
	idx, hit := hittest.FindContainingPolygon(p, t.Polygons)
	return idx, hit, nil
}

// Click resolves a page-space click against the polygons of target and
// records a hit in the tracker
func (f *Finder) Click(target int, page types.PagePoint, zoom float64, frame types.ImageFrame) (ClickResult, error) {
	t, ok := f.catalogue.Get(target)
	if !ok {
		return ClickResult{}, fmt.Errorf("%w: %d", ErrUnknownTarget, target)
	}

	p, err := f.Locate(page, zoom, frame)
	if err != nil {
		return ClickResult{}, err
	}

	res := ClickResult{Target: target, Point: p, Polygon: -1}

	idx, hit := hittest.FindContainingPolygon(p, t.Polygons)
	if !hit {
		res.State, _ = f.tracker.State(target)
		f.logger.Debug("click missed", "target", target, "x", p.X, "y", p.Y)
		return res, nil
	}

	mark, err := f.tracker.Mark(target, idx, len(t.Polygons))
	if err != nil {
		return ClickResult{}, fmt.Errorf("failed to record hit: %w", err)
	}

	res.Polygon = idx
	res.Hit = true
	res.AlreadyFound = mark.AlreadyFound
	res.JustSolved = mark.JustSolved
	res.State = mark.State

	f.logger.Debug("click hit", "target", target, "name", t.Name, "polygon", idx, "already_found", mark.AlreadyFound)
	if mark.JustSolved {
		f.logger.Info("target solved", "target", target, "name", t.Name, "credit", t.Credit)
	}
	return res, nil
}

// Replay applies recorded clicks in order. It stops at the first failing event
// and returns the results gathered so far.
func (f *Finder) Replay(events []ClickEvent) ([]ClickResult, error) {
	results := make([]ClickResult, 0, len(events))
	for i, ev := range events {
		res, err := f.Click(ev.Target, ev.Page, ev.Zoom, ev.Frame)
		if err != nil {
			return results, fmt.Errorf("event %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Marker returns where an image-intrinsic point should be drawn on a
// device-resolution surface for frame
func (f *Finder) Marker(p types.ImagePoint, frame types.ImageFrame) types.ScreenPoint {
	return coords.ToScreenSpace(p, frame)
}

// Remaining returns the indices of targets that are not fully solved
func (f *Finder) Remaining() []int {
	var out []int
	for i := 0; i < f.catalogue.Len(); i++ {
		if !f.tracker.IsSolved(i) {
			out = append(out, i)
		}
	}
	return out
}

// LoadSession decodes a JSON array of click events. An event without a zoom
// field gets zoom 1; an explicit zoom is kept as recorded, so Click can reject it.
func LoadSession(r io.Reader) ([]ClickEvent, error) {
	var recorded []struct {
		ClickEvent
		Zoom *float64 `json:"zoom"`
	}
	if err := json.NewDecoder(r).Decode(&recorded); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	events := make([]ClickEvent, len(recorded))
	for i, rec := range recorded {
		events[i] = rec.ClickEvent
		events[i].Zoom = 1
		if rec.Zoom != nil {
			events[i].Zoom = *rec.Zoom
		}
	}
	return events, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
