package browser

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

//go:embed scripts/*.js
var scriptFS embed.FS

const placeholder = "__FP__"

// surface is one fingerprint signal patched by an init script.
type surface struct {
	name   string
	source string
	config func(fp fingerprint.Fingerprint) any
}

var surfaces = []surface{
	{name: "webdriver"},
	{name: "navigator", config: func(fp fingerprint.Fingerprint) any {
		return map[string]any{
			"language":            fp.Language,
			"languages":           fp.Languages,
			"hardwareConcurrency": fp.HardwareConcurrency,
			"deviceMemory":        fp.DeviceMemory,
		}
	}},
	{name: "screen", config: func(fp fingerprint.Fingerprint) any { return fp.Screen }},
	{name: "canvas", config: func(fp fingerprint.Fingerprint) any { return fp.Canvas }},
	{name: "clientrects", config: func(fp fingerprint.Fingerprint) any {
		return map[string]any{"mode": fp.ClientRects.Mode, "seed": fp.Seed}
	}},
	{name: "audio", config: func(fp fingerprint.Fingerprint) any {
		return map[string]any{"mode": fp.AudioContext.Mode, "seed": fp.Seed}
	}},
	{name: "webgl", config: func(fp fingerprint.Fingerprint) any {
		return map[string]any{
			"imageMode": fp.WebGL.ImageMode,
			"metaMode":  fp.WebGL.MetaMode,
			"vendor":    fp.WebGL.Vendor,
			"renderer":  fp.WebGL.Renderer,
			"seed":      fp.Seed,
		}
	}},
	{name: "webrtc", config: func(fp fingerprint.Fingerprint) any { return fp.WebRTC }},
}

// Injector applies a fingerprint to pages. Every surface is independent: a
// failure is logged and counted, and the remaining surfaces still apply.
type Injector struct {
	surfaces []surface
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewInjector loads the embedded scripts and checks that each one parses
// and runs against an empty global object.
func NewInjector(logger *zap.Logger) (*Injector, error) {
	loaded := make([]surface, len(surfaces))
	for i, s := range surfaces {
		src, err := scriptFS.ReadFile("scripts/" + s.name + ".js")
		if err != nil {
			return nil, fmt.Errorf("missing script %s: %w", s.name, err)
		}
		s.source = string(src)
		if err := dryRun(s.name, render(s, fingerprint.Build(fingerprint.Config{}))); err != nil {
			return nil, err
		}
		loaded[i] = s
	}
	return &Injector{surfaces: loaded, logger: logger}, nil
}

// WithMetrics counts failed surfaces.
func (in *Injector) WithMetrics(m *monitoring.Metrics) *Injector {
	in.metrics = m
	return in
}

// Scripts renders every surface script for fp, keyed by surface name.
func (in *Injector) Scripts(fp fingerprint.Fingerprint) map[string]string {
	out := make(map[string]string, len(in.surfaces))
	for _, s := range in.surfaces {
		out[s.name] = render(s, fp)
	}
	return out
}

// Apply installs init scripts and emulation overrides on page. It never
// fails; the returned slice names the surfaces that could not be applied.
func (in *Injector) Apply(ctx context.Context, page Page, fp fingerprint.Fingerprint) []string {
	var failed []string
	try := func(name string, err error) {
		if err == nil {
			return
		}
		failed = append(failed, name)
		in.metrics.RecordInjectionError(name)
		in.logger.Warn("fingerprint surface not applied",
			zap.Int("profile_id", fp.ProfileID),
			zap.String("surface", name),
			zap.Error(err),
		)
	}

	for _, s := range in.surfaces {
		try(s.name, page.AddInitScript(ctx, render(s, fp)))
	}

	if fp.Screen.Width > 0 && fp.Screen.Height > 0 {
		try("viewport", page.SetViewport(ctx, fp.Screen.Width, fp.Screen.Height))
	}
	try("media", page.EmulateMedia(ctx, map[string]string{
		"prefers-color-scheme":   "light",
		"prefers-reduced-motion": "no-preference",
	}))
	if fp.UA != "" {
		try("user_agent", page.SetUserAgent(ctx, fp.UA, acceptLanguage(fp), platform(fp)))
	}
	if fp.TimezoneID != "" {
		try("timezone", page.SetTimezone(ctx, fp.TimezoneID))
	}
	if fp.Geo.Enabled {
		try("geolocation", page.SetGeolocation(ctx, fp.Geo.Lat, fp.Geo.Lon))
	}
	return failed
}

func render(s surface, fp fingerprint.Fingerprint) string {
	if s.config == nil {
		return s.source
	}
	cfg, err := sonic.ConfigStd.Marshal(s.config(fp))
	if err != nil {
		cfg = []byte("{}")
	}
	return strings.Replace(s.source, placeholder, string(cfg), 1)
}

func dryRun(name, src string) error {
	prg, err := goja.Compile(name+".js", src, false)
	if err != nil {
		return fmt.Errorf("script %s does not compile: %w", name, err)
	}
	vm := goja.New()
	if err := vm.Set("window", vm.GlobalObject()); err != nil {
		return err
	}
	if _, err := vm.RunProgram(prg); err != nil {
		return fmt.Errorf("script %s failed: %w", name, err)
	}
	return nil
}

func acceptLanguage(fp fingerprint.Fingerprint) string {
	if len(fp.Languages) == 0 {
		return fp.Language
	}
	parts := make([]string, len(fp.Languages))
	for i, l := range fp.Languages {
		if i == 0 {
			parts[i] = l
			continue
		}
		parts[i] = fmt.Sprintf("%s;q=%.1f", l, 1-float64(i)/10)
	}
	return strings.Join(parts, ",")
}

func platform(fp fingerprint.Fingerprint) string {
	switch fp.Family() {
	case fingerprint.MacOS:
		return "MacIntel"
	case fingerprint.Linux:
		return "Linux x86_64"
	default:
		return "Win32"
	}
}
