package fingerprint

import "strings"

// Supported browser major versions.
const (
	MinBrowserVersion     = 130
	MaxBrowserVersion     = 140
	DefaultBrowserVersion = 136

	defaultSeed = 12345
)

// Spoofing modes.
const (
	ModeOff   = "off"
	ModeNoise = "noise"
	ModeBlock = "block"
	ModeMask  = "mask"
	ModeReal  = "real"
)

// Family is the coarse OS family used for defaults and user agents.
type Family string

const (
	Windows Family = "windows"
	MacOS   Family = "macos"
	Linux   Family = "linux"
)

// FamilyOf maps a display OS name ("Windows 11", "macOS M2", ...) to its family.
func FamilyOf(osName string) Family {
	name := strings.ToLower(osName)
	switch {
	case strings.Contains(name, "mac"), strings.Contains(name, "darwin"):
		return MacOS
	case strings.Contains(name, "linux"), strings.Contains(name, "ubuntu"):
		return Linux
	default:
		return Windows
	}
}

// OS identifies the emulated operating system.
type OS struct {
	Name string `json:"name" yaml:"name"`
	Arch string `json:"arch" yaml:"arch"`
}

// Browser identifies the emulated browser build.
type Browser struct {
	Version int `json:"version" yaml:"version"`
}

// Screen is the emulated screen and viewport size.
type Screen struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Canvas controls canvas read-back noise. Seed keys the noise pattern.
type Canvas struct {
	Mode string `json:"mode" yaml:"mode"`
	Seed int    `json:"seed" yaml:"seed"`
}

// ClientRects controls getClientRects noise.
type ClientRects struct {
	Mode string `json:"mode" yaml:"mode"`
}

// AudioContext controls audio buffer noise.
type AudioContext struct {
	Mode string `json:"mode" yaml:"mode"`
}

// WebGL controls WebGL image noise and vendor metadata masking.
type WebGL struct {
	ImageMode string `json:"imageMode" yaml:"imageMode"`
	MetaMode  string `json:"metaMode" yaml:"metaMode"`
	Vendor    string `json:"vendor" yaml:"vendor"`
	Renderer  string `json:"renderer" yaml:"renderer"`
}

// Geo is an optional geolocation override.
type Geo struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Lon     float64 `json:"lon" yaml:"lon"`
}

// WebRTC controls local address exposure.
type WebRTC struct {
	UseMainIP bool `json:"useMainIP" yaml:"useMainIP"`
}

// ManualProxy is a proxy typed in directly instead of picked from the library.
type ManualProxy struct {
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ProxyRef points either at a library proxy or at a manual one.
type ProxyRef struct {
	LibraryID *int         `json:"libraryId,omitempty"`
	Manual    *ManualProxy `json:"manual,omitempty"`
}

// Fingerprint is the full set of signals presented by one profile.
type Fingerprint struct {
	Seed                int          `json:"seed"`
	ProfileID           int          `json:"profileId,omitempty"`
	OS                  OS           `json:"os"`
	UA                  string       `json:"ua"`
	Browser             Browser      `json:"browser"`
	Screen              Screen       `json:"screen"`
	Canvas              Canvas       `json:"canvas"`
	ClientRects         ClientRects  `json:"clientRects"`
	AudioContext        AudioContext `json:"audioContext"`
	WebGL               WebGL        `json:"webgl"`
	Geo                 Geo          `json:"geo"`
	WebRTC              WebRTC       `json:"webrtc"`
	Proxy               ProxyRef     `json:"proxy"`
	MAC                 string       `json:"mac"`
	TimezoneID          string       `json:"timezoneId"`
	Language            string       `json:"language"`
	Languages           []string     `json:"languages"`
	HardwareConcurrency int          `json:"hardwareConcurrency"`
	DeviceMemory        int          `json:"deviceMemory"`
}

// Family returns the OS family of the fingerprint.
func (f Fingerprint) Family() Family {
	return FamilyOf(f.OS.Name)
}
