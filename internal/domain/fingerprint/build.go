package fingerprint

import "strings"

// Config holds the coarse inputs of a fingerprint. Zero values mean
// "use the default".
type Config struct {
	ProfileID int `json:"profileId,omitempty"`
	Seed      int `json:"seed,omitempty"`

	OSName         string `json:"osName,omitempty"`
	OSArch         string `json:"osArch,omitempty"`
	BrowserVersion int    `json:"browserVersion,omitempty"`
	ScreenWidth    int    `json:"screenWidth,omitempty"`
	ScreenHeight   int    `json:"screenHeight,omitempty"`

	CanvasMode      string `json:"canvasMode,omitempty"`
	ClientRectsMode string `json:"clientRectsMode,omitempty"`
	AudioMode       string `json:"audioCtxMode,omitempty"`
	WebGLImageMode  string `json:"webglImageMode,omitempty"`
	WebGLMetaMode   string `json:"webglMetaMode,omitempty"`
	WebGLVendor     string `json:"webglVendor,omitempty"`
	WebGLRenderer   string `json:"webglRenderer,omitempty"`

	GeoEnabled   bool    `json:"geoEnabled,omitempty"`
	GeoLatitude  float64 `json:"geoLatitude,omitempty"`
	GeoLongitude float64 `json:"geoLongitude,omitempty"`
	WebRTCMainIP bool    `json:"webrtcMainIP,omitempty"`

	ProxyRefID  *int         `json:"proxyRefId,omitempty"`
	ProxyManual *ManualProxy `json:"proxyManual,omitempty"`

	UserAgent string `json:"ua,omitempty"`
	MAC       string `json:"mac,omitempty"`

	TimezoneID          string `json:"timezoneId,omitempty"`
	Language            string `json:"language,omitempty"`
	HardwareConcurrency int    `json:"hardwareConcurrency,omitempty"`
	DeviceMemory        int    `json:"deviceMemory,omitempty"`
}

// Build synthesizes a fingerprint from cfg. It performs no I/O and the same
// cfg always yields the same record; every noise field is keyed by the seed,
// which defaults to the profile id.
func Build(cfg Config) Fingerprint {
	seed := cfg.Seed
	if seed == 0 {
		seed = cfg.ProfileID
	}
	if seed == 0 {
		seed = defaultSeed
	}

	osName := cfg.OSName
	if osName == "" {
		osName = "Windows 10"
	}
	family := FamilyOf(osName)

	arch := cfg.OSArch
	if arch == "" {
		arch = "x64"
	}

	language := cfg.Language
	if language == "" {
		language = "en-US"
	}

	timezone := cfg.TimezoneID
	if timezone == "" {
		timezone = DefaultTimezone(osName)
	}

	hw := cfg.HardwareConcurrency
	if hw == 0 {
		hw = DefaultHardwareConcurrency(seed)
	}

	mem := cfg.DeviceMemory
	if mem == 0 {
		mem = DefaultDeviceMemory(seed)
	}

	vendor, renderer := cfg.WebGLVendor, cfg.WebGLRenderer
	if vendor == "" || renderer == "" {
		vendor, renderer = defaultWebGL(family)
	}

	return Fingerprint{
		Seed:      seed,
		ProfileID: cfg.ProfileID,
		OS:        OS{Name: osName, Arch: arch},
		UA:        cfg.UserAgent,
		Browser:   Browser{Version: ClampVersion(cfg.BrowserVersion)},
		Screen: Screen{
			Width:  orDefault(cfg.ScreenWidth, 1920),
			Height: orDefault(cfg.ScreenHeight, 1080),
		},
		Canvas:       Canvas{Mode: mode(cfg.CanvasMode, ModeNoise), Seed: seed},
		ClientRects:  ClientRects{Mode: mode(cfg.ClientRectsMode, ModeOff)},
		AudioContext: AudioContext{Mode: mode(cfg.AudioMode, ModeNoise)},
		WebGL: WebGL{
			ImageMode: mode(cfg.WebGLImageMode, ModeOff),
			MetaMode:  mode(cfg.WebGLMetaMode, ModeMask),
			Vendor:    vendor,
			Renderer:  renderer,
		},
		Geo: Geo{
			Enabled: cfg.GeoEnabled,
			Lat:     cfg.GeoLatitude,
			Lon:     cfg.GeoLongitude,
		},
		WebRTC:              WebRTC{UseMainIP: cfg.WebRTCMainIP},
		Proxy:               ProxyRef{LibraryID: cfg.ProxyRefID, Manual: cfg.ProxyManual},
		MAC:                 cfg.MAC,
		TimezoneID:          timezone,
		Language:            language,
		Languages:           Languages(language),
		HardwareConcurrency: hw,
		DeviceMemory:        mem,
	}
}

// ClampVersion bounds v to the supported range; zero selects the default.
func ClampVersion(v int) int {
	switch {
	case v == 0:
		return DefaultBrowserVersion
	case v < MinBrowserVersion:
		return MinBrowserVersion
	case v > MaxBrowserVersion:
		return MaxBrowserVersion
	}
	return v
}

// DefaultTimezone picks a plausible timezone for the OS.
func DefaultTimezone(osName string) string {
	if osName == "" {
		return "America/Los_Angeles"
	}
	switch FamilyOf(osName) {
	case Windows:
		return "America/New_York"
	case Linux:
		return "Europe/London"
	default:
		return "America/Los_Angeles"
	}
}

// DefaultHardwareConcurrency returns 4..7 cores derived from seed.
func DefaultHardwareConcurrency(seed int) int {
	return 4 + (positive(seed)%100)%4
}

// DefaultDeviceMemory returns 4, 8 or 16 GB derived from seed.
func DefaultDeviceMemory(seed int) int {
	options := [...]int{4, 8, 16}
	return options[(positive(seed)%100)%len(options)]
}

// Languages expands "en-US" into ["en-US", "en"].
func Languages(language string) []string {
	prefix, _, _ := strings.Cut(language, "-")
	if prefix == language {
		return []string{language}
	}
	return []string{language, prefix}
}

func defaultWebGL(family Family) (string, string) {
	switch family {
	case MacOS:
		return "Apple Inc.", "Apple M1"
	case Linux:
		return "Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1060 3GB (0x00001C02) Direct3D11 vs_5_0 ps_5_0, D3D11)"
	default:
		return "Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 630 (0x00003E92) Direct3D11 vs_5_0 ps_5_0, D3D11)"
	}
}

func mode(v, def string) string {
	if v == "" {
		return def
	}
	return strings.ToLower(v)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func positive(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
