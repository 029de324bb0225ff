package fingerprint

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Preset is a named, reusable set of coarse fingerprint inputs.
type Preset struct {
	ID             int    `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	OSName         string `json:"osName" yaml:"osName"`
	OSArch         string `json:"osArch" yaml:"osArch"`
	BrowserVersion int    `json:"browserVersion" yaml:"browserVersion"`
	ScreenWidth    int    `json:"screenWidth" yaml:"screenWidth"`
	ScreenHeight   int    `json:"screenHeight" yaml:"screenHeight"`

	CanvasMode      string `json:"canvasMode" yaml:"canvasMode"`
	ClientRectsMode string `json:"clientRectsMode" yaml:"clientRectsMode"`
	AudioMode       string `json:"audioCtxMode" yaml:"audioCtxMode"`
	WebGLImageMode  string `json:"webglImageMode" yaml:"webglImageMode"`
	WebGLMetaMode   string `json:"webglMetaMode" yaml:"webglMetaMode"`
	WebGLVendor     string `json:"webglVendor" yaml:"webglVendor"`
	WebGLRenderer   string `json:"webglRenderer" yaml:"webglRenderer"`

	TimezoneID          string `json:"timezoneId" yaml:"timezoneId"`
	Language            string `json:"language" yaml:"language"`
	HardwareConcurrency int    `json:"hardwareConcurrency" yaml:"hardwareConcurrency"`
	DeviceMemory        int    `json:"deviceMemory" yaml:"deviceMemory"`
}

// ApplyPreset fills every unset field of cfg from p. Explicit config values win.
func ApplyPreset(cfg Config, p Preset) Config {
	fillString(&cfg.OSName, p.OSName)
	fillString(&cfg.OSArch, p.OSArch)
	fillInt(&cfg.BrowserVersion, p.BrowserVersion)
	fillInt(&cfg.ScreenWidth, p.ScreenWidth)
	fillInt(&cfg.ScreenHeight, p.ScreenHeight)
	fillString(&cfg.CanvasMode, p.CanvasMode)
	fillString(&cfg.ClientRectsMode, p.ClientRectsMode)
	fillString(&cfg.AudioMode, p.AudioMode)
	fillString(&cfg.WebGLImageMode, p.WebGLImageMode)
	fillString(&cfg.WebGLMetaMode, p.WebGLMetaMode)
	fillString(&cfg.WebGLVendor, p.WebGLVendor)
	fillString(&cfg.WebGLRenderer, p.WebGLRenderer)
	fillString(&cfg.TimezoneID, p.TimezoneID)
	fillString(&cfg.Language, p.Language)
	fillInt(&cfg.HardwareConcurrency, p.HardwareConcurrency)
	fillInt(&cfg.DeviceMemory, p.DeviceMemory)
	return cfg
}

// ParsePresets decodes a YAML list of presets.
func ParsePresets(data []byte) ([]Preset, error) {
	var doc struct {
		Presets []Preset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	for i, p := range doc.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("preset %d has no name", i)
		}
	}
	return doc.Presets, nil
}

// LoadPresetFile reads presets from a YAML file.
func LoadPresetFile(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset file: %w", err)
	}
	return ParsePresets(data)
}

func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}
