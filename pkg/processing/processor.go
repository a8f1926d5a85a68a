package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/spywhere/pkg/coords"
	"github.com/menta2k/spywhere/pkg/types"
)

// Processor handles image loading, overlays and reveal crops
type Processor struct {
	client *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{client: &http.Client{Timeout: 30 * time.Second}}
}

// Layer is one polygon drawn on an overlay
type Layer struct {
	Polygon types.Polygon
	Fill    color.NRGBA
	Stroke  color.NRGBA
}

// Palette holds the overlay colors
type Palette struct {
	Found   color.NRGBA
	Hidden  color.NRGBA
	Outline color.NRGBA
	Marker  color.NRGBA
}

// DefaultPalette returns translucent green for found polygons and gold for the rest
func DefaultPalette() Palette {
	return Palette{
		Found:   color.NRGBA{0, 200, 80, 110},
		Hidden:  color.NRGBA{255, 204, 0, 90},
		Outline: color.NRGBA{255, 255, 255, 255},
		Marker:  color.NRGBA{255, 0, 0, 255},
	}
}

// TargetLayers builds one layer per polygon of every target. found decides the
// fill color; a nil found draws everything as hidden.
func TargetLayers(targets []types.Target, found func(target, polygon int) bool, palette Palette) []Layer {
	var layers []Layer
	for ti, t := range targets {
		for pi, poly := range t.Polygons {
			fill := palette.Hidden
			if found != nil && found(ti, pi) {
				fill = palette.Found
			}
			layers = append(layers, Layer{Polygon: poly, Fill: fill, Stroke: palette.Outline})
		}
	}
	return layers
}

// LoadImageFromURL downloads and loads an image from a URL
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "spywhere/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return p.decodeImageFromBytes(imageData)
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.decodeImageFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// NaturalFrame returns a frame that renders img at its natural size with no
// offset, which makes ToScreenSpace the identity
func NaturalFrame(img image.Image) types.ImageFrame {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	return types.ImageFrame{
		RenderedWidth:    w,
		RenderedHeight:   h,
		NaturalWidth:     w,
		NaturalHeight:    h,
		DevicePixelRatio: 1,
	}
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// CropTarget cuts the bounding box of poly out of img, grown by padding (a
// fraction of the longer box side). When targetWidth and targetHeight are
// positive the crop is filled to exactly that size.
func (p *Processor) CropTarget(img image.Image, poly types.Polygon, padding float64, targetWidth, targetHeight int) (image.Image, error) {
	if len(poly) == 0 {
		return nil, fmt.Errorf("empty polygon")
	}

	bounds := img.Bounds()
	box := poly.Bounds()
	pad := math.Max(box.Width(), box.Height()) * math.Max(padding, 0)

	x0 := int(math.Floor(box.MinX - pad))
	y0 := int(math.Floor(box.MinY - pad))
	x1 := int(math.Ceil(box.MaxX + pad))
	y1 := int(math.Ceil(box.MaxY + pad))

	rect := image.Rect(x0, y0, x1, y1).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop rectangle")
	}

	cropped := imaging.Crop(img, rect)

	if targetWidth > 0 && targetHeight > 0 {
		cropped = imaging.Fill(cropped, targetWidth, targetHeight, imaging.Center, imaging.Lanczos)
	}

	return cropped, nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CreateOverlay renders img the way frame displays it, at device resolution,
// with every layer filled and outlined and a crosshair at each marker.
// An invalid frame falls back to the natural image size.
func (p *Processor) CreateOverlay(img image.Image, frame types.ImageFrame, layers []Layer, markers []types.ImagePoint, palette Palette) image.Image {
	if !frame.Valid() {
		frame = NaturalFrame(img)
	}
	dpr := coords.DevicePixelRatio(frame)
	w := int(math.Round(frame.RenderedWidth * dpr))
	h := int(math.Round(frame.RenderedHeight * dpr))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	var surface *image.NRGBA
	if b := img.Bounds(); b.Dx() == w && b.Dy() == h {
		surface = imaging.Clone(img)
	} else {
		surface = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	stroke := int(math.Max(1, 0.003*float64(minInt(w, h))))
	cross := int(math.Max(4, 0.01*float64(minInt(w, h))))

	for _, layer := range layers {
		if len(layer.Polygon) == 0 {
			continue
		}
		pts := make([]types.ScreenPoint, len(layer.Polygon))
		for i, v := range layer.Polygon {
			pts[i] = coords.ToScreenSpace(v, frame)
		}
		fillPolygon(surface, pts, layer.Fill)
		if layer.Stroke.A > 0 {
			outlinePolygon(surface, pts, layer.Stroke, stroke)
		}
	}

	for _, m := range markers {
		s := coords.ToScreenSpace(m, frame)
		px, py := int(math.Round(s.X)), int(math.Round(s.Y))
		for d := -stroke / 2; d <= stroke/2; d++ {
			drawHLine(surface, py+d, px-cross, px+cross, palette.Marker)
			drawVLine(surface, px+d, py-cross, py+cross, palette.Marker)
		}
	}

	return surface
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func fillPolygon(img *image.NRGBA, pts []types.ScreenPoint, c color.NRGBA) {
	if c.A == 0 || len(pts) < 3 {
		return
	}
	b := img.Bounds()
	r := vector.NewRasterizer(b.Dx(), b.Dy())
	r.DrawOp = draw.Over

	fx := func(v float64) float32 { return float32(clamp(v, -1, float64(b.Dx()+1))) }
	fy := func(v float64) float32 { return float32(clamp(v, -1, float64(b.Dy()+1))) }

	r.MoveTo(fx(pts[0].X), fy(pts[0].Y))
	for _, pt := range pts[1:] {
		r.LineTo(fx(pt.X), fy(pt.Y))
	}
	r.ClosePath()
	r.Draw(img, b, image.NewUniform(c), image.Point{})
}

func outlinePolygon(img *image.NRGBA, pts []types.ScreenPoint, c color.NRGBA, stroke int) {
	for i, j := 0, len(pts)-1; i < len(pts); j, i = i, i+1 {
		a, b := pts[j], pts[i]
		for s := 0; s < stroke; s++ {
			off := float64(s - stroke/2)
			drawLine(img, a.X+off, a.Y, b.X+off, b.Y, c)
			drawLine(img, a.X, a.Y+off, b.X, b.Y+off, c)
		}
	}
}

// drawLine draws a one-pixel Bresenham line, clipped to the image
func drawLine(img *image.NRGBA, fx0, fy0, fx1, fy1 float64, c color.NRGBA) {
	limit := float64(4 * (img.Bounds().Dx() + img.Bounds().Dy()))
	x0 := int(math.Round(clamp(fx0, -limit, limit)))
	y0 := int(math.Round(clamp(fy0, -limit, limit)))
	x1 := int(math.Round(clamp(fx1, -limit, limit)))
	y1 := int(math.Round(clamp(fy1, -limit, limit)))

	dx := absInt(x1 - x0)
	dy := -absInt(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		setPixel(img, x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if x < 0 || y < 0 || x >= img.Bounds().Dx() || y >= img.Bounds().Dy() {
		return
	}
	i := y*img.Stride + x*4
	img.Pix[i+0] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
