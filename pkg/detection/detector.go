package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/menta2k/spywhere/pkg/client"
	"github.com/menta2k/spywhere/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// LocatePrompt asks for the bounding box of one named target. %s is the target name.
const LocatePrompt = `You are helping author a hidden-object puzzle.

Find "%s" in this image and return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
  },
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels); x,y is the top-left corner.
- The box should tightly enclose the object and nothing else.
- If the object is not visible, return label "none" with confidence 0.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// ErrNotFound is returned when the model reports that the target is not visible
var ErrNotFound = errors.New("target not found by model")

// Detector proposes target polygons using a vision model
type Detector struct {
	client        client.VisionClient
	minConfidence float64
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient) *Detector {
	return &Detector{client: client, minConfidence: 0.2}
}

// SetMinConfidence changes the confidence below which a location is treated as not found
func (d *Detector) SetMinConfidence(v float64) {
	d.minConfidence = clamp(v, 0, 1)
}

// SuggestPolygon asks the model where target is and returns a rectangular
// polygon in image-intrinsic space for an image of the given natural size
func (d *Detector) SuggestPolygon(ctx context.Context, model, imageB64, target string, naturalWidth, naturalHeight int) (*types.Suggestion, error) {
	if naturalWidth <= 0 || naturalHeight <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", naturalWidth, naturalHeight)
	}

	prompt := fmt.Sprintf(LocatePrompt, strings.ReplaceAll(target, `"`, `'`))
	result, err := d.client.LocateTarget(ctx, model, prompt, imageB64)
	if err != nil {
		return nil, err
	}

	label := strings.ToLower(strings.TrimSpace(result.Primary.Label))
	if label == "none" || label == "" || result.Primary.Confidence < d.minConfidence {
		return nil, fmt.Errorf("%w: %q (label %q, confidence %.2f)", ErrNotFound, target, result.Primary.Label, result.Primary.Confidence)
	}

	box := normalizeBox(result.Primary.Box)
	if box.W <= 0 || box.H <= 0 {
		return nil, fmt.Errorf("%w: %q (empty box)", ErrNotFound, target)
	}

	return &types.Suggestion{
		Target:     target,
		Label:      result.Primary.Label,
		Confidence: result.Primary.Confidence,
		Polygon:    BoxToPolygon(box, naturalWidth, naturalHeight),
	}, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, model, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imageB64)
}

// BoxToPolygon converts a normalized box into a clockwise rectangle in image
// pixels, rounded to whole pixels
func BoxToPolygon(b types.Box, naturalWidth, naturalHeight int) types.Polygon {
	w, h := float64(naturalWidth), float64(naturalHeight)
	x0, y0 := round(b.X*w), round(b.Y*h)
	x1, y1 := round((b.X+b.W)*w), round((b.Y+b.H)*h)
	return types.Polygon{
		{X: x0, Y: y0},
		{X: x1, Y: y0},
		{X: x1, Y: y1},
		{X: x0, Y: y1},
	}
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64) float64 {
	return float64(int64(v + 0.5))
}

// normalizeBox clamps the box into the unit square
func normalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}
