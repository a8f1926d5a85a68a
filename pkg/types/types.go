package types

import (
	"encoding/json"
	"fmt"
	"math"
)

// PagePoint is a pointer position in page space (relative to the full document)
type PagePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ImagePoint is a position in image-intrinsic space (natural image pixels)
type ImagePoint struct {
	X float64
	Y float64
}

// ScreenPoint is a position in rendered space, measured in device pixels
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MarshalJSON encodes the point as an [x, y] pair
func (p ImagePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON decodes an [x, y] pair
func (p *ImagePoint) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("point must be an [x, y] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("point must have 2 coordinates, got %d", len(pair))
	}
	p.X, p.Y = pair[0], pair[1]
	return nil
}

// Polygon is an implicitly closed ring of vertices in image-intrinsic space.
// Winding order does not matter.
type Polygon []ImagePoint

// Rect is an axis-aligned rectangle in image-intrinsic space
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the horizontal extent of the rectangle
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the vertical extent of the rectangle
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Bounds returns the bounding box of the polygon. An empty polygon yields a zero Rect.
func (p Polygon) Bounds() Rect {
	if len(p) == 0 {
		return Rect{}
	}
	r := Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, v := range p {
		r.MinX = math.Min(r.MinX, v.X)
		r.MinY = math.Min(r.MinY, v.Y)
		r.MaxX = math.Max(r.MaxX, v.X)
		r.MaxY = math.Max(r.MaxY, v.Y)
	}
	return r
}

// Target is a named, credited region of interest made of one or more polygons
type Target struct {
	Name     string
	Credit   string
	Polygons []Polygon
}

// MarshalJSON encodes the target as a [name, credit, polygons] tuple
func (t Target) MarshalJSON() ([]byte, error) {
	polys := t.Polygons
	if polys == nil {
		polys = []Polygon{}
	}
	return json.Marshal([]any{t.Name, t.Credit, polys})
}

// UnmarshalJSON decodes a [name, credit, polygons] tuple
func (t *Target) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("target must be a [name, credit, polygons] tuple: %w", err)
	}
	if len(tuple) != 3 {
		return fmt.Errorf("target tuple must have 3 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &t.Name); err != nil {
		return fmt.Errorf("target name: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &t.Credit); err != nil {
		return fmt.Errorf("target %q credit: %w", t.Name, err)
	}
	if err := json.Unmarshal(tuple[2], &t.Polygons); err != nil {
		return fmt.Errorf("target %q polygons: %w", t.Name, err)
	}
	return nil
}

// ImageFrame is a snapshot of how the image is currently laid out on the page.
// Left and Top are viewport-relative, like a bounding client rect.
type ImageFrame struct {
	Left             float64 `json:"left"`
	Top              float64 `json:"top"`
	ScrollX          float64 `json:"scroll_x"`
	ScrollY          float64 `json:"scroll_y"`
	RenderedWidth    float64 `json:"rendered_width"`
	RenderedHeight   float64 `json:"rendered_height"`
	NaturalWidth     float64 `json:"natural_width"`
	NaturalHeight    float64 `json:"natural_height"`
	DevicePixelRatio float64 `json:"device_pixel_ratio,omitempty"`
}

// Valid reports whether both rendered and natural dimensions are positive
func (f ImageFrame) Valid() bool {
	return f.RenderedWidth > 0 && f.RenderedHeight > 0 &&
		f.NaturalWidth > 0 && f.NaturalHeight > 0
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Primary is the target location reported by the vision model
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// AnalysisResult contains the complete location result from the vision model
type AnalysisResult struct {
	Primary     Primary `json:"primary"`
	Description string  `json:"description"`
}

// Suggestion is a polygon proposed for a target, ready to paste into a target file
type Suggestion struct {
	Target     string  `json:"target"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Polygon    Polygon `json:"polygon"`
}

// OutputOptions contains options for writing images
type OutputOptions struct {
	OutputDir string
	Format    string
	Quality   int
	Lossless  bool
}
