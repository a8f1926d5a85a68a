package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/spywhere"
	"github.com/menta2k/spywhere/internal/config"
	"github.com/menta2k/spywhere/internal/logger"
	"github.com/menta2k/spywhere/internal/utils"
	"github.com/menta2k/spywhere/pkg/analyzer"
	"github.com/menta2k/spywhere/pkg/detection"
	"github.com/menta2k/spywhere/pkg/ollama"
	"github.com/menta2k/spywhere/pkg/processing"
	"github.com/menta2k/spywhere/pkg/progress"
	"github.com/menta2k/spywhere/pkg/targets"
	"github.com/menta2k/spywhere/pkg/types"
)

func main() {
	var configPath, targetsPath, in, sessionPath, progressPath, outDir, ext string
	var quality int
	var lossless, strict bool
	var overlay, crops, check bool
	var suggest, url, model string
	var dpr float64

	flag.StringVar(&configPath, "config", config.GetConfigPath(), "config file (JSON); missing file means defaults")
	flag.StringVar(&targetsPath, "targets", "", "target file: JSON array of [name, credit, polygons]")
	flag.StringVar(&in, "image", "", "scene image path or URL (jpg/png/webp)")
	flag.StringVar(&sessionPath, "session", "", "recorded clicks to replay (JSON array of click events)")
	flag.StringVar(&progressPath, "progress", "", "progress file to resume from and update")
	flag.StringVar(&outDir, "out", "", "output directory")

	flag.StringVar(&ext, "ext", "", "output format for images: jpg|png|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")
	flag.BoolVar(&strict, "strict", false, "reject polygons with fewer than 3 vertices")
	flag.Float64Var(&dpr, "dpr", 0, "device pixel ratio for the overlay when no session frame is available")

	flag.BoolVar(&overlay, "overlay", false, "write an overlay of all polygons and click markers")
	flag.BoolVar(&crops, "crops", false, "write a reveal crop for every found polygon")
	flag.BoolVar(&check, "check", false, "check target polygons against the image and write a report")

	flag.StringVar(&suggest, "suggest", "", "ask the vision model for a polygon around the named target")
	flag.StringVar(&url, "url", "", "Ollama server URL")
	flag.StringVar(&model, "model", "", "vision model name")

	flag.Parse()

	log := logger.Setup()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(log, "config", err)
	}

	// explicit flags win over config and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "targets":
			cfg.Targets.File = targetsPath
		case "strict":
			cfg.Targets.Strict = strict
		case "out":
			cfg.Output.OutputDir = outDir
		case "ext":
			cfg.Output.DefaultFormat = ext
		case "quality":
			cfg.Output.Quality = quality
		case "lossless":
			cfg.Output.Lossless = lossless
		case "dpr":
			cfg.Display.DevicePixelRatio = dpr
		case "url":
			cfg.Vision.URL = url
		case "model":
			cfg.Vision.Model = model
		}
	})
	if err := cfg.Validate(); err != nil {
		fatal(log, "config", err)
	}

	if sessionPath == "" && !overlay && !crops && !check && suggest == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -targets targets.json [-image scene.jpg] [-session clicks.json] [-progress progress.json] [-overlay] [-crops] [-check] [-suggest name] [-out dir]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		fatal(log, "output directory", err)
	}

	processor := processing.NewProcessor()

	var img image.Image
	if in != "" {
		if !utils.IsImageFile(in) {
			log.Warn("image path has no image extension, trying to decode anyway", "image", in)
		}
		img, err = processor.LoadImageSmart(in)
		if err != nil {
			fatal(log, "load image", err)
		}
		b := img.Bounds()
		log.Info("image loaded", "image", in, "width", b.Dx(), "height", b.Dy())
	}

	suggestOnly := suggest != "" && sessionPath == "" && !overlay && !crops && !check

	loader := targets.NewWithConfig(targets.Config{Strict: cfg.Targets.Strict}, log)
	cat, err := loader.Load(cfg.Targets.File)
	switch {
	case err == nil:
		log.Info("targets loaded", "file", cfg.Targets.File, "count", cat.Len())
	case suggestOnly:
		// suggestions can seed a new target file
		log.Warn("no target catalogue, suggesting a new target", "file", cfg.Targets.File, "err", err)
		cat = targets.NewCatalogue(nil)
	default:
		fatal(log, "load targets", err)
	}

	if suggest != "" {
		if img == nil {
			fatal(log, "suggest", fmt.Errorf("-suggest needs -image"))
		}
		if err := runSuggest(log, cfg, processor, img, cat, suggest); err != nil {
			fatal(log, "suggest", err)
		}
		if suggestOnly {
			return
		}
	}

	tracker := progress.New()
	if progressPath != "" && utils.FileExists(progressPath) {
		data, err := os.ReadFile(progressPath)
		if err != nil {
			fatal(log, "read progress", err)
		}
		if err := json.Unmarshal(data, tracker); err != nil {
			fatal(log, "read progress", err)
		}
		log.Info("progress restored", "file", progressPath, "solved", tracker.SolvedCount())
	}

	finder := spywhere.New(cat, spywhere.WithLogger(log), spywhere.WithTracker(tracker))

	var events []spywhere.ClickEvent
	var markers []types.ImagePoint
	if sessionPath != "" {
		f, err := os.Open(sessionPath)
		if err != nil {
			fatal(log, "open session", err)
		}
		events, err = spywhere.LoadSession(f)
		f.Close()
		if err != nil {
			fatal(log, "load session", err)
		}

		results, replayErr := finder.Replay(events)
		for i, res := range results {
			t, _ := cat.Get(res.Target)
			status := "miss"
			switch {
			case res.JustSolved:
				status = "solved"
			case res.AlreadyFound:
				status = "already found"
			case res.Hit:
				status = "found"
			}
			fmt.Printf("%03d target=%d (%s) point=(%.1f, %.1f) polygon=%d %s\n",
				i, res.Target, t.Name, res.Point.X, res.Point.Y, res.Polygon, status)
			markers = append(markers, res.Point)
		}
		if replayErr != nil {
			log.Error("replay stopped", "err", replayErr)
		}
		fmt.Printf("solved %d of %d targets\n", tracker.SolvedCount(), cat.Len())
	}

	if check {
		if img == nil {
			fatal(log, "check", fmt.Errorf("-check needs -image"))
		}
		a := analyzer.NewWithConfig(analyzer.Config{
			MinImageSize:   cfg.Checker.MinImageSize,
			MinPolygonArea: cfg.Checker.MinPolygonArea,
		})
		if err := a.ValidateImage(img); err != nil {
			log.Warn("image validation", "err", err)
		}
		report := a.CheckTargets(a.GetImageInfo(img), cat.All())
		for _, pr := range report.Polygons {
			if len(pr.Issues) > 0 {
				log.Warn("polygon issue", "target", pr.Target, "name", pr.Name, "polygon", pr.Polygon, "issues", strings.Join(pr.Issues, ", "))
			}
		}
		writeJSON(log, filepath.Join(cfg.Output.OutputDir, "check_report.json"), report)
		fmt.Printf("checked %d polygons, %d issues\n", len(report.Polygons), report.Issues)
	}

	if overlay {
		if img == nil {
			fatal(log, "overlay", fmt.Errorf("-overlay needs -image"))
		}
		frame := overlayFrame(cfg, img, events)
		layers := processing.TargetLayers(cat.All(), tracker.IsFound, processing.DefaultPalette())
		out := processor.CreateOverlay(img, frame, layers, markers, processing.DefaultPalette())

		path := utils.GenerateOutputFilename(in, cfg.Output.OutputDir, "", "_overlay", cfg.Output.DefaultFormat)
		if strings.Contains(in, "://") {
			path = filepath.Join(cfg.Output.OutputDir, "overlay."+cfg.Output.DefaultFormat)
		}
		if err := processor.SaveImage(out, path, cfg.Output.DefaultFormat, cfg.Output.Quality, cfg.Output.Lossless); err != nil {
			log.Error("overlay save failed", "path", path, "err", err)
		} else {
			log.Info("wrote overlay", "path", path)
		}
	}

	if crops {
		if img == nil {
			fatal(log, "crops", fmt.Errorf("-crops needs -image"))
		}
		writeCrops(log, cfg, processor, img, cat.All(), tracker)
	}

	if progressPath != "" {
		writeJSON(log, progressPath, tracker)
	}
}

// overlayFrame picks the layout to draw: the frame of the last replayed click,
// or the configured display size, or the natural image size
func overlayFrame(cfg *config.Config, img image.Image, events []spywhere.ClickEvent) types.ImageFrame {
	if n := len(events); n > 0 && events[n-1].Frame.Valid() {
		return events[n-1].Frame
	}
	frame := processing.NaturalFrame(img)
	if cfg.Display.RenderedWidth > 0 && cfg.Display.RenderedHeight > 0 {
		frame.RenderedWidth = cfg.Display.RenderedWidth
		frame.RenderedHeight = cfg.Display.RenderedHeight
	}
	frame.DevicePixelRatio = cfg.Display.DevicePixelRatio
	return frame
}

func writeCrops(log *slog.Logger, cfg *config.Config, processor *processing.Processor, img image.Image, list []types.Target, tracker *progress.Tracker) {
	size := cfg.Output.CropSize
	written := 0
	for ti, t := range list {
		for pi, poly := range t.Polygons {
			if !tracker.IsFound(ti, pi) {
				continue
			}
			crop, err := processor.CropTarget(img, poly, cfg.Output.CropPadding, size, size)
			if err != nil {
				log.Warn("crop failed", "target", ti, "name", t.Name, "polygon", pi, "err", err)
				continue
			}
			name := fmt.Sprintf("%03d_%s_%d.%s", ti, utils.SanitizeFilename(t.Name), pi, strings.ToLower(cfg.Output.DefaultFormat))
			path := filepath.Join(cfg.Output.OutputDir, name)
			if err := processor.SaveImage(crop, path, cfg.Output.DefaultFormat, cfg.Output.Quality, cfg.Output.Lossless); err != nil {
				log.Error("crop save failed", "path", path, "err", err)
				continue
			}
			written++
		}
	}
	log.Info("wrote reveal crops", "count", written, "dir", cfg.Output.OutputDir)
}

// runSuggest prints a target entry with the suggested polygon. A target already
// in the catalogue keeps its catalogue name and credit.
func runSuggest(log *slog.Logger, cfg *config.Config, processor *processing.Processor, img image.Image, cat *targets.Catalogue, name string) error {
	visionClient, err := ollama.NewClient(cfg.Vision.URL)
	if err != nil {
		return fmt.Errorf("failed to create Ollama client: %w", err)
	}

	imgB64, err := processor.PrepareImageForModel(img, cfg.Vision.SendFormat, cfg.Vision.SendSize, cfg.Vision.SendQuality)
	if err != nil {
		return err
	}

	detector := detection.NewDetector(visionClient)
	detector.SetMinConfidence(cfg.Vision.MinConfidence)

	b := img.Bounds()
	s, err := detector.SuggestPolygon(context.Background(), cfg.Vision.Model, imgB64, name, b.Dx(), b.Dy())
	if err != nil {
		return err
	}
	log.Info("polygon suggested", "target", name, "label", s.Label, "confidence", s.Confidence)

	entry, index, known := suggestionEntry(cat, name, s.Polygon)
	if known {
		log.Info("target already in catalogue", "target", index, "name", entry.Name)
	}
	js, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	fmt.Println(string(js))
	return nil
}

// suggestionEntry builds the target entry for a suggested polygon, reusing the
// name and credit of a catalogue target with the same name
func suggestionEntry(cat *targets.Catalogue, name string, poly types.Polygon) (types.Target, int, bool) {
	entry := types.Target{Name: name, Polygons: []types.Polygon{poly}}
	i, ok := cat.Find(name)
	if !ok {
		return entry, -1, false
	}
	existing, _ := cat.Get(i)
	entry.Name, entry.Credit = existing.Name, existing.Credit
	return entry, i, true
}

func writeJSON(log *slog.Logger, path string, v any) {
	js, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error("encode failed", "path", path, "err", err)
		return
	}
	if err := os.WriteFile(path, js, 0o644); err != nil {
		log.Error("write failed", "path", path, "err", err)
		return
	}
	log.Info("wrote file", "path", path)
}

func fatal(log *slog.Logger, what string, err error) {
	log.Error(what+" failed", "err", err)
	os.Exit(1)
}
