package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "SPYWHERE_"

// Config holds the application configuration
type Config struct {
	Targets TargetsConfig `json:"targets"`
	Display DisplayConfig `json:"display"`
	Checker CheckerConfig `json:"checker"`
	Output  OutputConfig  `json:"output"`
	Vision  VisionConfig  `json:"vision"`
}

// TargetsConfig holds configuration for loading target files
type TargetsConfig struct {
	File   string `json:"file"`
	Strict bool   `json:"strict"`
}

// DisplayConfig describes how the image is shown when no session frame is available
type DisplayConfig struct {
	DevicePixelRatio float64 `json:"device_pixel_ratio"`
	RenderedWidth    float64 `json:"rendered_width"`
	RenderedHeight   float64 `json:"rendered_height"`
}

// CheckerConfig holds configuration for the scene checker
type CheckerConfig struct {
	MinImageSize   int     `json:"min_image_size"`
	MinPolygonArea float64 `json:"min_polygon_area"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string  `json:"default_format"`
	OutputDir     string  `json:"output_dir"`
	Quality       int     `json:"quality"`
	Lossless      bool    `json:"lossless"`
	CropPadding   float64 `json:"crop_padding"`
	CropSize      int     `json:"crop_size"`
}

// VisionConfig holds configuration for the polygon suggestion backend
type VisionConfig struct {
	URL           string  `json:"url"`
	Model         string  `json:"model"`
	SendFormat    string  `json:"send_format"`
	SendSize      int     `json:"send_size"`
	SendQuality   int     `json:"send_quality"`
	MinConfidence float64 `json:"min_confidence"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Targets: TargetsConfig{
			File:   "targets.json",
			Strict: false,
		},
		Display: DisplayConfig{
			DevicePixelRatio: 1,
		},
		Checker: CheckerConfig{
			MinImageSize:   100,
			MinPolygonArea: 1,
		},
		Output: OutputConfig{
			DefaultFormat: "png",
			OutputDir:     "./out",
			Quality:       90,
			Lossless:      false,
			CropPadding:   0.15,
			CropSize:      256,
		},
		Vision: VisionConfig{
			URL:           "http://localhost:11434",
			Model:         "openbmb/minicpm-v4.5",
			SendFormat:    "jpg",
			SendSize:      1536,
			SendQuality:   85,
			MinConfidence: 0.2,
		},
	}
}

// LoadFromFile loads configuration from a JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads filename if it exists (defaults otherwise), then applies
// overrides from the environment and any .env files
func Load(filename string, envFiles ...string) (*Config, error) {
	config := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			loaded, err := LoadFromFile(filename)
			if err != nil {
				return nil, err
			}
			config = loaded
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// missing .env files are normal
		_ = godotenv.Load(f)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from SPYWHERE_* environment variables
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"TARGETS_FILE":  &c.Targets.File,
		"OUTPUT_DIR":    &c.Output.OutputDir,
		"OUTPUT_FORMAT": &c.Output.DefaultFormat,
		"VISION_URL":    &c.Vision.URL,
		"VISION_MODEL":  &c.Vision.Model,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"OUTPUT_QUALITY": &c.Output.Quality,
		"CROP_SIZE":      &c.Output.CropSize,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"DEVICE_PIXEL_RATIO": &c.Display.DevicePixelRatio,
		"CROP_PADDING":       &c.Output.CropPadding,
	}
	for key, dst := range floats {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = f
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "TARGETS_STRICT"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sTARGETS_STRICT: %w", EnvPrefix, err)
		}
		c.Targets.Strict = b
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Display.DevicePixelRatio < 0 {
		return fmt.Errorf("display.device_pixel_ratio must not be negative")
	}

	if c.Display.RenderedWidth < 0 || c.Display.RenderedHeight < 0 {
		return fmt.Errorf("display.rendered_width and rendered_height must not be negative")
	}

	if c.Checker.MinImageSize < 1 {
		return fmt.Errorf("checker.min_image_size must be positive")
	}

	if c.Checker.MinPolygonArea < 0 {
		return fmt.Errorf("checker.min_polygon_area must not be negative")
	}

	switch strings.ToLower(c.Output.DefaultFormat) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("output.default_format must be jpg, png or webp")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Output.CropPadding < 0 || c.Output.CropPadding > 1 {
		return fmt.Errorf("output.crop_padding must be between 0 and 1")
	}

	if c.Output.CropSize < 0 {
		return fmt.Errorf("output.crop_size must not be negative")
	}

	if c.Vision.SendQuality < 1 || c.Vision.SendQuality > 100 {
		return fmt.Errorf("vision.send_quality must be between 1 and 100")
	}

	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 1 {
		return fmt.Errorf("vision.min_confidence must be between 0 and 1")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "spywhere", "config.json")
}
