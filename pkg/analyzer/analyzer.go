package analyzer

import (
	"fmt"
	"image"
	"math"

	"github.com/menta2k/spywhere/pkg/hittest"
	"github.com/menta2k/spywhere/pkg/types"
)

// Issue kinds reported by CheckTargets
const (
	IssueTooFewVertices = "too few vertices"
	IssueZeroArea       = "zero area"
	IssueOutsideImage   = "outside image"
	IssueShadowed       = "overlaps earlier polygon"
)

// ImageAnalyzer checks target polygons against the image they are drawn on
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the scene checker
type Config struct {
	MinImageSize   int
	MinPolygonArea float64
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			MinImageSize:   100,
			MinPolygonArea: 1,
		},
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

// PolygonReport describes one polygon of one target
type PolygonReport struct {
	Target   int        `json:"target"`
	Name     string     `json:"name"`
	Polygon  int        `json:"polygon"`
	Vertices int        `json:"vertices"`
	Area     float64    `json:"area"`
	Bounds   types.Rect `json:"bounds"`
	Issues   []string   `json:"issues,omitempty"`
}

// Report is the result of checking a target set against an image
type Report struct {
	Image    ImageInfo       `json:"image"`
	Targets  int             `json:"targets"`
	Polygons []PolygonReport `json:"polygons"`
	Issues   int             `json:"issues"`
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}

// CheckTargets reports area, bounds and authoring problems for every polygon.
// Nothing here blocks hit testing; degenerate polygons simply never match.
func (a *ImageAnalyzer) CheckTargets(info ImageInfo, targets []types.Target) Report {
	report := Report{Image: info, Targets: len(targets)}

	for ti, t := range targets {
		for pi, poly := range t.Polygons {
			pr := PolygonReport{
				Target:   ti,
				Name:     t.Name,
				Polygon:  pi,
				Vertices: len(poly),
				Area:     PolygonArea(poly),
				Bounds:   poly.Bounds(),
			}

			if len(poly) < 3 {
				pr.Issues = append(pr.Issues, IssueTooFewVertices)
			} else if pr.Area < a.config.MinPolygonArea {
				pr.Issues = append(pr.Issues, IssueZeroArea)
			}
			if len(poly) > 0 && !insideImage(pr.Bounds, info) {
				pr.Issues = append(pr.Issues, IssueOutsideImage)
			}
			if shadowedBy(poly, t.Polygons[:pi]) {
				pr.Issues = append(pr.Issues, IssueShadowed)
			}

			report.Issues += len(pr.Issues)
			report.Polygons = append(report.Polygons, pr)
		}
	}

	return report
}

// PolygonArea returns the unsigned shoelace area of poly
func PolygonArea(poly types.Polygon) float64 {
	if len(poly) < 3 {
		return 0
	}
	var sum float64
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		sum += poly[j].X*poly[i].Y - poly[i].X*poly[j].Y
	}
	return math.Abs(sum) / 2
}

func insideImage(r types.Rect, info ImageInfo) bool {
	return r.MinX >= 0 && r.MinY >= 0 &&
		r.MaxX <= float64(info.Width) && r.MaxY <= float64(info.Height)
}

// shadowedBy reports whether any vertex of poly lies inside an earlier polygon,
// where clicks resolve to the earlier one
func shadowedBy(poly types.Polygon, earlier []types.Polygon) bool {
	if len(earlier) == 0 {
		return false
	}
	for _, v := range poly {
		if _, ok := hittest.FindContainingPolygon(v, earlier); ok {
			return true
		}
	}
	return false
}
