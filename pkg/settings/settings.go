// Package settings keeps client stream preferences.
package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/opencloud/opencloud/pkg/store"
)

// ColorQuality sets bit depth and chroma subsampling of the stream.
type ColorQuality string

const (
	Color8Bit420  ColorQuality = "8bit_420"
	Color8Bit444  ColorQuality = "8bit_444"
	Color10Bit420 ColorQuality = "10bit_420"
	Color10Bit444 ColorQuality = "10bit_444"
)

// Chroma formats as the remote API wants them.
const (
	Chroma420 = 0
	Chroma444 = 1
)

// BitDepth returns the remote bit depth value: 0 is the default 8-bit.
func (c ColorQuality) BitDepth() int {
	if strings.HasPrefix(string(c), "10bit") {
		return 10
	}
	return 0
}

func (c ColorQuality) ChromaFormat() int {
	if strings.HasSuffix(string(c), "_444") {
		return Chroma444
	}
	return Chroma420
}

// Stream holds the user stream settings.
// Codec is the video codec the answer prefers.
type Stream struct {
	Resolution     string       `json:"resolution"`
	FPS            int          `json:"fps"`
	ColorQuality   ColorQuality `json:"colorQuality"`
	Codec          string       `json:"codec"`
	KeyboardLayout string       `json:"keyboardLayout"`
	Language       string       `json:"language"`
}

func Default() Stream {
	return Stream{
		Resolution:     "1920x1080",
		FPS:            60,
		ColorQuality:   Color8Bit420,
		Codec:          "H264",
		KeyboardLayout: "en-US",
		Language:       "en_US",
	}
}

// Size parses the WxH resolution string.
// Malformed values yield the default 1920x1080.
func (s Stream) Size() (w, h int) {
	w, h = 1920, 1080
	parts := strings.SplitN(strings.ToLower(s.Resolution), "x", 2)
	if len(parts) != 2 {
		return
	}
	pw, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	ph, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || pw <= 0 || ph <= 0 {
		return
	}
	return pw, ph
}

// Load reads the settings from the store.
// Missing or unknown fields are set to defaults.
func Load(s store.Store) (Stream, error) {
	conf := Default()
	raw, err := s.Get(store.KeyAppSettings)
	if err != nil {
		return conf, err
	}
	if raw == "" {
		return conf, nil
	}
	if err = json.Unmarshal([]byte(raw), &conf); err != nil {
		return Default(), fmt.Errorf("settings: %w", err)
	}
	conf.fix()
	return conf, nil
}

func Save(s store.Store, conf Stream) error {
	data, err := json.Marshal(conf)
	if err != nil {
		return err
	}
	return s.Set(store.KeyAppSettings, string(data))
}

func (s *Stream) fix() {
	def := Default()
	if s.Resolution == "" {
		s.Resolution = def.Resolution
	}
	if s.FPS <= 0 {
		s.FPS = def.FPS
	}
	switch s.ColorQuality {
	case Color8Bit420, Color8Bit444, Color10Bit420, Color10Bit444:
	default:
		s.ColorQuality = def.ColorQuality
	}
	if s.Codec == "" {
		s.Codec = def.Codec
	}
	if s.KeyboardLayout == "" {
		s.KeyboardLayout = def.KeyboardLayout
	}
	if s.Language == "" {
		s.Language = def.Language
	}
}
