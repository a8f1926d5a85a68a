// Package coords maps pointer positions between page space and
// image-intrinsic space.
//
// The two directions are deliberately not inverses of each other.
// ToImageSpace removes scroll offset and zoom; ToScreenSpace applies the
// device pixel ratio instead, because markers are drawn on a surface that is
// already zoomed and backed by device pixels.
package coords

import (
	"math"

	"github.com/menta2k/spywhere/pkg/types"
)

// ToImageSpace converts a page-space pointer position into image-intrinsic
// coordinates. A zero rendered dimension or zoom factor yields NaN or Inf.
func ToImageSpace(page types.PagePoint, zoomFactor float64, frame types.ImageFrame) types.ImagePoint {
	absX := page.X - frame.Left - frame.ScrollX
	absY := page.Y - frame.Top - frame.ScrollY

	relX := ((absX / frame.RenderedWidth) * frame.NaturalWidth) / zoomFactor
	relY := ((absY / frame.RenderedHeight) * frame.NaturalHeight) / zoomFactor

	return types.ImagePoint{X: relX, Y: relY}
}

// ToScreenSpace converts an image-intrinsic point into rendered device pixels.
// Zoom and scroll are not applied.
func ToScreenSpace(p types.ImagePoint, frame types.ImageFrame) types.ScreenPoint {
	nX := p.X * (frame.RenderedWidth / frame.NaturalWidth)
	nY := p.Y * (frame.RenderedHeight / frame.NaturalHeight)
	dpr := DevicePixelRatio(frame)

	return types.ScreenPoint{X: nX * dpr, Y: nY * dpr}
}

// DevicePixelRatio returns the frame's ratio, or 1 when it is unavailable (zero or NaN)
func DevicePixelRatio(frame types.ImageFrame) float64 {
	if frame.DevicePixelRatio == 0 || math.IsNaN(frame.DevicePixelRatio) {
		return 1
	}
	return frame.DevicePixelRatio
}

// ToPageSpace places an image-intrinsic point back on the page for a given
// zoom factor. It is the exact inverse of ToImageSpace and is what a
// recorder uses to synthesise pointer events.
func ToPageSpace(p types.ImagePoint, zoomFactor float64, frame types.ImageFrame) types.PagePoint {
	absX := p.X * zoomFactor / frame.NaturalWidth * frame.RenderedWidth
	absY := p.Y * zoomFactor / frame.NaturalHeight * frame.RenderedHeight

	return types.PagePoint{
		X: absX + frame.Left + frame.ScrollX,
		Y: absY + frame.Top + frame.ScrollY,
	}
}
