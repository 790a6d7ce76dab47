package hwenc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the encoder settings. CLI flags override it.
type Config struct {
	Codec       string        `yaml:"codec"`        // avc or hevc
	RateControl string        `yaml:"rate_control"` // cbr, vbr, avbr, icq, cqp
	TargetUsage string        `yaml:"target_usage"` // quality, balanced, speed or 1..7
	FrameRate   string        `yaml:"frame_rate"`   // "30" or "30000/1001"
	InputFourCC string        `yaml:"input_fourcc"` // yv12, iyuv or nv12
	AsyncDepth  int           `yaml:"async_depth"`
	SyncTimeout time.Duration `yaml:"sync_timeout"`
	Drain       *bool         `yaml:"drain,omitempty"` // drain buffered frames at end of input
	GOP         GOPConfig     `yaml:"gop,omitempty"`
	MFX         MFXFileConfig `yaml:"mfx"`
	LogLevel    string        `yaml:"log_level"`
}

// GOPConfig overrides the encoder's GOP structure. Zero keeps the library default.
type GOPConfig struct {
	PicSize     uint16 `yaml:"pic_size,omitempty"`
	RefDist     uint16 `yaml:"ref_dist,omitempty"`
	IdrInterval uint16 `yaml:"idr_interval,omitempty"`
	NumRefFrame uint16 `yaml:"num_ref_frame,omitempty"`
}

// MFXFileConfig selects the vendor library and implementation.
type MFXFileConfig struct {
	Implementation string `yaml:"implementation"`
	LibraryPath    string `yaml:"library_path,omitempty"`
	APIVersion     string `yaml:"api_version,omitempty"` // "major.minor"
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// LoadConfig reads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return DecodeConfig(bytes.NewReader(data))
}

// DecodeConfig decodes YAML, rejecting unknown fields, and applies defaults.
func DecodeConfig(r io.Reader) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults applies explicit default values to unset fields.
func (c *Config) setDefaults() {
	if c.Codec == "" {
		c.Codec = "avc"
	}
	if c.RateControl == "" {
		c.RateControl = "vbr"
	}
	if c.TargetUsage == "" {
		c.TargetUsage = "balanced"
	}
	if c.FrameRate == "" {
		c.FrameRate = "30"
	}
	if c.InputFourCC == "" {
		c.InputFourCC = "yv12"
	}
	if c.AsyncDepth == 0 {
		c.AsyncDepth = 1
	}
	if c.SyncTimeout == 0 {
		c.SyncTimeout = DefaultSyncTimeout
	}
	if c.Drain == nil {
		drain := true
		c.Drain = &drain
	}
	if c.MFX.Implementation == "" {
		c.MFX.Implementation = "auto"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that every field parses.
func (c *Config) Validate() error {
	if _, err := c.PipelineOptions(); err != nil {
		return err
	}
	if _, err := c.MFXConfig(); err != nil {
		return err
	}
	if c.AsyncDepth < 1 || c.AsyncDepth > 0xFFFF {
		return fmt.Errorf("async_depth %d out of range", c.AsyncDepth)
	}
	if c.SyncTimeout < 0 {
		return fmt.Errorf("sync_timeout %s is negative", c.SyncTimeout)
	}
	return nil
}

// PipelineOptions converts the encoder settings.
func (c *Config) PipelineOptions() (PipelineOptions, error) {
	var (
		opts PipelineOptions
		err  error
	)
	if opts.Codec, err = ParseCodecID(c.Codec); err != nil {
		return opts, err
	}
	if opts.RateControl, err = ParseRateControlMode(c.RateControl); err != nil {
		return opts, err
	}
	if opts.TargetUsage, err = ParseTargetUsage(c.TargetUsage); err != nil {
		return opts, err
	}
	if opts.FrameRate, err = ParseFrameRate(c.FrameRate); err != nil {
		return opts, err
	}
	if opts.InputFourCC, err = ParseFourCC(c.InputFourCC); err != nil {
		return opts, err
	}
	opts.AsyncDepth = c.AsyncDepth
	return opts, nil
}

// MFXConfig converts the library settings.
func (c *Config) MFXConfig() (MFXConfig, error) {
	impl, err := ParseImplementation(c.MFX.Implementation)
	if err != nil {
		return MFXConfig{}, err
	}
	cfg := MFXConfig{Implementation: impl, LibraryPath: c.MFX.LibraryPath}
	if c.MFX.APIVersion != "" {
		major, minor, _ := strings.Cut(c.MFX.APIVersion, ".")
		ma, err := strconv.ParseUint(major, 10, 16)
		if err != nil {
			return MFXConfig{}, fmt.Errorf("api_version %q: %w", c.MFX.APIVersion, err)
		}
		var mi uint64
		if minor != "" {
			if mi, err = strconv.ParseUint(minor, 10, 16); err != nil {
				return MFXConfig{}, fmt.Errorf("api_version %q: %w", c.MFX.APIVersion, err)
			}
		}
		cfg.Version = APIVersion{Major: uint16(ma), Minor: uint16(mi)}
	}
	return cfg, nil
}

// DriverOptions converts the driver settings.
func (c *Config) DriverOptions() []DriverOption {
	drain := c.Drain == nil || *c.Drain
	return []DriverOption{
		WithSyncTimeout(c.SyncTimeout),
		WithDrainOnEOS(drain),
	}
}

// ApplyGOP copies the non-zero GOP overrides into p.
func (c *Config) ApplyGOP(p *PipelineParams) {
	if c.GOP.PicSize != 0 {
		p.Encode.GopPicSize = c.GOP.PicSize
	}
	if c.GOP.RefDist != 0 {
		p.Encode.GopRefDist = c.GOP.RefDist
	}
	if c.GOP.IdrInterval != 0 {
		p.Encode.IdrInterval = c.GOP.IdrInterval
	}
	if c.GOP.NumRefFrame != 0 {
		p.Encode.NumRefFrame = c.GOP.NumRefFrame
	}
}

// ParseFrameRate parses "N" or "N/D", such as "30000/1001".
func ParseFrameRate(s string) (FrameRate, error) {
	num, den, hasDen := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil || n == 0 {
		return FrameRate{}, fmt.Errorf("invalid frame rate %q", s)
	}
	d := uint64(1)
	if hasDen {
		if d, err = strconv.ParseUint(den, 10, 32); err != nil || d == 0 {
			return FrameRate{}, fmt.Errorf("invalid frame rate %q", s)
		}
	}
	return FrameRate{Num: uint32(n), Den: uint32(d)}, nil
}

// ParseFourCC parses a raw input layout name.
func ParseFourCC(s string) (FourCC, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yv12":
		return FourCCYV12, nil
	case "iyuv", "i420":
		return FourCCIYUV, nil
	case "nv12":
		return FourCCNV12, nil
	default:
		return 0, fmt.Errorf("unknown pixel format %q", s)
	}
}
