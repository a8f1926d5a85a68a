package spywhere

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/menta2k/spywhere/pkg/coords"
	"github.com/menta2k/spywhere/pkg/progress"
	"github.com/menta2k/spywhere/pkg/targets"
	"github.com/menta2k/spywhere/pkg/types"
)

func square(x0, y0, x1, y1 float64) types.Polygon {
	return types.Polygon{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

// createTestFinder builds a finder with a single-polygon target and a two-polygon target
func createTestFinder(opts ...Option) *Finder {
	cat := targets.NewCatalogue([]types.Target{
		{Name: "Lamp", Credit: "ana", Polygons: []types.Polygon{square(100, 100, 200, 200)}},
		{Name: "Socks", Credit: "lee", Polygons: []types.Polygon{
			square(400, 400, 500, 500),
			square(600, 100, 700, 200),
		}},
	})
	return New(cat, opts...)
}

// testFrame renders an 800x600 image at half size, offset on the page
func testFrame() types.ImageFrame {
	return types.ImageFrame{
		Left: 20, Top: 60,
		RenderedWidth: 400, RenderedHeight: 300,
		NaturalWidth: 800, NaturalHeight: 600,
	}
}

// clickAt returns the page position of an image point for zoom 1
func clickAt(p types.ImagePoint) types.PagePoint {
	return coords.ToPageSpace(p, 1, testFrame())
}

func TestNew(t *testing.T) {
	finder := New(nil)
	if finder == nil {
		t.Fatal("New() returned nil")
	}
	if finder.Targets().Len() != 0 {
		t.Error("Expected empty catalogue")
	}
	if finder.Progress() == nil {
		t.Error("Expected a tracker")
	}
}

func TestClickSolvesSinglePolygonTarget(t *testing.T) {
	finder := createTestFinder()

	res, err := finder.Click(0, clickAt(types.ImagePoint{X: 150, Y: 150}), 1, testFrame())
	if err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	if !res.Hit || res.Polygon != 0 || !res.JustSolved || !res.State.Full {
		t.Errorf("Expected target 0 solved by one hit, got %+v", res)
	}
	if math.Abs(res.Point.X-150) > 1e-9 || math.Abs(res.Point.Y-150) > 1e-9 {
		t.Errorf("Expected point (150,150), got %v", res.Point)
	}
}

func TestClickPartialProgress(t *testing.T) {
	finder := createTestFinder()

	res, err := finder.Click(1, clickAt(types.ImagePoint{X: 650, Y: 150}), 1, testFrame())
	if err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	if !res.Hit || res.Polygon != 1 || res.State.Full {
		t.Errorf("Expected partial hit on polygon 1, got %+v", res)
	}

	res, _ = finder.Click(1, clickAt(types.ImagePoint{X: 650, Y: 150}), 1, testFrame())
	if !res.AlreadyFound {
		t.Error("Expected second click on the same polygon to be already found")
	}

	res, _ = finder.Click(1, clickAt(types.ImagePoint{X: 450, Y: 450}), 1, testFrame())
	if !res.JustSolved {
		t.Errorf("Expected target solved after both polygons, got %+v", res)
	}

	if rem := finder.Remaining(); len(rem) != 1 || rem[0] != 0 {
		t.Errorf("Expected only target 0 remaining, got %v", rem)
	}
}

func TestClickOnlyTestsActiveTarget(t *testing.T) {
	finder := createTestFinder()

	// inside target 1's polygon while target 0 is active
	res, err := finder.Click(0, clickAt(types.ImagePoint{X: 450, Y: 450}), 1, testFrame())
	if err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	if res.Hit || res.Polygon != -1 {
		t.Errorf("Expected a miss, got %+v", res)
	}
	if finder.Progress().IsFound(1, 0) {
		t.Error("A click for target 0 must not mark target 1")
	}
}

func TestClickWithZoom(t *testing.T) {
	finder := createTestFinder()
	frame := testFrame()
	frame.ScrollY = 250

	page := coords.ToPageSpace(types.ImagePoint{X: 120, Y: 180}, 2.5, frame)
	res, err := finder.Click(0, page, 2.5, frame)
	if err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	if !res.Hit {
		t.Errorf("Expected hit at zoom 2.5, got %+v", res)
	}
}

func TestClickErrors(t *testing.T) {
	finder := createTestFinder()
	page := clickAt(types.ImagePoint{X: 150, Y: 150})

	if _, err := finder.Click(7, page, 1, testFrame()); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("Expected ErrUnknownTarget, got %v", err)
	}

	bad := testFrame()
	bad.NaturalWidth = 0
	if _, err := finder.Click(0, page, 1, bad); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Expected ErrInvalidFrame, got %v", err)
	}

	for _, zoom := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := finder.Click(0, page, zoom, testFrame()); !errors.Is(err, ErrInvalidZoom) {
			t.Errorf("zoom %v: expected ErrInvalidZoom, got %v", zoom, err)
		}
	}

	if finder.Progress().SolvedCount() != 0 {
		t.Error("Rejected clicks must not change progress")
	}
}

func TestHitTest(t *testing.T) {
	finder := createTestFinder()

	idx, ok, err := finder.HitTest(1, types.ImagePoint{X: 450, Y: 450})
	if err != nil || !ok || idx != 0 {
		t.Errorf("Expected polygon 0, got %d ok=%v err=%v", idx, ok, err)
	}
	if _, _, err := finder.HitTest(-1, types.ImagePoint{}); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("Expected ErrUnknownTarget, got %v", err)
	}
}

func TestReplay(t *testing.T) {
	finder := createTestFinder()
	events := []ClickEvent{
		{Target: 0, Page: clickAt(types.ImagePoint{X: 10, Y: 10}), Zoom: 1, Frame: testFrame()},
		{Target: 0, Page: clickAt(types.ImagePoint{X: 150, Y: 150}), Zoom: 1, Frame: testFrame()},
		{Target: 3, Page: clickAt(types.ImagePoint{X: 150, Y: 150}), Zoom: 1, Frame: testFrame()},
		{Target: 1, Page: clickAt(types.ImagePoint{X: 450, Y: 450}), Zoom: 1, Frame: testFrame()},
	}

	results, err := finder.Replay(events)
	if !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("Expected ErrUnknownTarget from event 2, got %v", err)
	}
	if !strings.Contains(err.Error(), "event 2") {
		t.Errorf("Expected error to name the event, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results before the failure, got %d", len(results))
	}
	if results[0].Hit || !results[1].Hit {
		t.Errorf("Unexpected results: %+v", results)
	}
	if finder.Progress().IsFound(1, 0) {
		t.Error("Events after the failure must not be applied")
	}
}

func TestLoadSession(t *testing.T) {
	data := `[
		{"target": 0, "page": {"x": 95, "y": 135}, "frame": {"left": 20, "top": 60, "rendered_width": 400, "rendered_height": 300, "natural_width": 800, "natural_height": 600}},
		{"target": 1, "page": {"x": 1, "y": 2}, "zoom": 2, "frame": {}}
	]`

	events, err := LoadSession(strings.NewReader(data))
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Zoom != 1 || events[1].Zoom != 2 {
		t.Errorf("Expected default zoom 1 and explicit zoom 2, got %v and %v", events[0].Zoom, events[1].Zoom)
	}

	res, err := createTestFinder().Click(events[0].Target, events[0].Page, events[0].Zoom, events[0].Frame)
	if err != nil || !res.Hit {
		t.Errorf("Expected recorded click to hit, got %+v err=%v", res, err)
	}

	if _, err := LoadSession(strings.NewReader("{")); err == nil {
		t.Error("Expected error for malformed session")
	}
}

func TestLoadSessionKeepsExplicitZoom(t *testing.T) {
	data := `[{"target": 0, "page": {"x": 95, "y": 135}, "zoom": 0, "frame": {"left": 20, "top": 60, "rendered_width": 400, "rendered_height": 300, "natural_width": 800, "natural_height": 600}}]`

	events, err := LoadSession(strings.NewReader(data))
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if events[0].Zoom != 0 {
		t.Fatalf("Expected recorded zoom 0 to be kept, got %v", events[0].Zoom)
	}

	finder := createTestFinder()
	if _, err := finder.Replay(events); !errors.Is(err, ErrInvalidZoom) {
		t.Errorf("Expected ErrInvalidZoom, got %v", err)
	}
	if finder.Progress().IsSolved(0) {
		t.Error("A click with an invalid zoom must not solve the target")
	}
}

func TestMarker(t *testing.T) {
	finder := createTestFinder()
	frame := testFrame()
	frame.DevicePixelRatio = 2

	m := finder.Marker(types.ImagePoint{X: 150, Y: 150}, frame)
	if m.X != 150 || m.Y != 150 {
		t.Errorf("Expected (150,150) device pixels, got %v", m)
	}
}

func TestWithTrackerAndLogger(t *testing.T) {
	tracker := progress.New()
	tracker.Mark(1, 0, 2)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	finder := createTestFinder(WithTracker(tracker), WithLogger(logger))

	res, err := finder.Click(1, clickAt(types.ImagePoint{X: 650, Y: 150}), 1, testFrame())
	if err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	if !res.JustSolved {
		t.Errorf("Expected restored progress to complete the target, got %+v", res)
	}
	if !strings.Contains(logs.String(), "target solved") {
		t.Errorf("Expected solve to be logged, got %q", logs.String())
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("Expected %s, got %s", Version, GetVersion())
	}
}

func BenchmarkClick(b *testing.B) {
	finder := createTestFinder()
	page := clickAt(types.ImagePoint{X: 10, Y: 10})
	frame := testFrame()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		finder.Click(1, page, 1, frame)
	}
}
