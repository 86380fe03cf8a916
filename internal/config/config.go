package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nalstream/rtpdepacketizer/pkg/logger"
	"github.com/nalstream/rtpdepacketizer/pkg/rtp"
)

var (
	// ErrInvalidCodec indicates the configured codec name is not h264 or opus.
	ErrInvalidCodec = errors.New("invalid codec")
	// ErrInvalidPrefix indicates the configured NAL prefix mode is unrecognized.
	ErrInvalidPrefix = errors.New("invalid prefix mode")
)

// Config holds the demo CLI's configuration: which codec to
// depacketize, the Depacketizer's timing knobs, the H.264 NAL framing
// mode, and the input/output/logging surface around the library.
type Config struct {
	Codec               string
	TimeoutMs           int
	ReapMs              int
	Prefix              string
	InjectSEITimestamps bool
	InputPath           string
	OutputDir           string
	LogLevel            string
}

// yamlConfig mirrors Config's fields for YAML unmarshaling.
type yamlConfig struct {
	Codec               string `yaml:"codec"`
	TimeoutMs           int    `yaml:"timeout_ms"`
	ReapMs              int    `yaml:"reap_ms"`
	Prefix              string `yaml:"prefix"`
	InjectSEITimestamps bool   `yaml:"inject_sei_timestamps"`
	InputPath           string `yaml:"input_path"`
	OutputDir           string `yaml:"output_dir"`
	LogLevel            string `yaml:"log_level"`
}

// LoadFromYAML loads configuration from a YAML file, reporting which
// top-level keys were present so merge can respect
// defaults < YAML < flags precedence without a present field clobbering
// an explicit flag value with its YAML zero value.
func LoadFromYAML(filePath string) (*Config, map[string]bool, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read YAML file: %w", err)
	}

	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML file: %w", err)
	}

	present := make(map[string]bool)
	for key := range rawMap {
		switch key {
		case "codec", "timeout_ms", "reap_ms", "prefix", "inject_sei_timestamps", "input_path", "output_dir", "log_level":
			present[key] = true
		}
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML file: %w", err)
	}

	config := &Config{
		Codec:               yamlCfg.Codec,
		TimeoutMs:           yamlCfg.TimeoutMs,
		ReapMs:              yamlCfg.ReapMs,
		Prefix:              yamlCfg.Prefix,
		InjectSEITimestamps: yamlCfg.InjectSEITimestamps,
		InputPath:           yamlCfg.InputPath,
		OutputDir:           yamlCfg.OutputDir,
		LogLevel:            yamlCfg.LogLevel,
	}

	return config, present, nil
}

// setDefaults fills in Codec, TimeoutMs, ReapMs, Prefix, OutputDir and
// LogLevel where still at their zero value; InputPath and
// InjectSEITimestamps have no default.
func (c *Config) setDefaults() {
	if c.Codec == "" {
		c.Codec = "h264"
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 5000
	}
	if c.ReapMs == 0 {
		c.ReapMs = 200
	}
	if c.Prefix == "" {
		c.Prefix = "annexb"
	}
	if c.OutputDir == "" {
		c.OutputDir = "./frames"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// merge overlays values from other onto c wherever the corresponding
// YAML key was present, implementing the defaults < YAML < flags chain
// one layer at a time.
func (c *Config) merge(other *Config, present map[string]bool) {
	if present["codec"] && other.Codec != "" {
		c.Codec = other.Codec
	}
	if present["timeout_ms"] && other.TimeoutMs != 0 {
		c.TimeoutMs = other.TimeoutMs
	}
	if present["reap_ms"] && other.ReapMs != 0 {
		c.ReapMs = other.ReapMs
	}
	if present["prefix"] && other.Prefix != "" {
		c.Prefix = other.Prefix
	}
	if present["inject_sei_timestamps"] {
		c.InjectSEITimestamps = other.InjectSEITimestamps
	}
	if present["input_path"] && other.InputPath != "" {
		c.InputPath = other.InputPath
	}
	if present["output_dir"] && other.OutputDir != "" {
		c.OutputDir = other.OutputDir
	}
	if present["log_level"] && other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// ParseFlags parses command-line flags, optionally layering a YAML
// config file (passed as the first positional argument) underneath
// them. Priority order: defaults < YAML < command-line flags.
func ParseFlags() (*Config, error) {
	config := &Config{}
	config.setDefaults()

	args := os.Args[1:]
	yamlPath := ""
	newArgs := []string{}

	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			newArgs = append(newArgs, arg)
			continue
		}
		if i == 0 || !strings.HasPrefix(args[i-1], "-") {
			if isYAMLFile(arg) {
				yamlPath = arg
				continue
			}
		}
		newArgs = append(newArgs, arg)
	}

	if yamlPath != "" {
		yamlCfg, present, err := LoadFromYAML(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load YAML config: %w", err)
		}
		config.merge(yamlCfg, present)
	}

	var (
		flagCodec     string
		flagTimeoutMs int
		flagReapMs    int
		flagPrefix    string
		flagInjectSEI bool
		flagInput     string
		flagOutputDir string
		flagLogLevel  string
	)

	fs := flag.NewFlagSet("rtpdepacketize", flag.ContinueOnError)
	fs.StringVarP(&flagCodec, "codec", "c", "", "Codec to depacketize: h264 or opus")
	fs.IntVar(&flagTimeoutMs, "timeout-ms", 0, "Frame discard age, in milliseconds")
	fs.IntVar(&flagReapMs, "reap-ms", 0, "Incomplete-frame promotion age, in milliseconds")
	fs.StringVarP(&flagPrefix, "prefix", "p", "", "H.264 NAL framing: none, annexb, or avcc")
	fs.BoolVar(&flagInjectSEI, "inject-sei-timestamps", false, "Inject a user-unregistered SEI timestamp after every PPS")
	fs.StringVarP(&flagInput, "input", "i", "", "Capture file to read (stdin if omitted)")
	fs.StringVarP(&flagOutputDir, "output", "o", "", "Directory to write reassembled frames into")
	fs.StringVarP(&flagLogLevel, "log-level", "l", "", "Log level: error, warn, info, debug")

	oldArgs := os.Args
	os.Args = append([]string{oldArgs[0]}, newArgs...)
	err := fs.Parse(os.Args[1:])
	os.Args = oldArgs
	if err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if flagCodec != "" {
		config.Codec = flagCodec
	}
	if flagTimeoutMs != 0 {
		config.TimeoutMs = flagTimeoutMs
	}
	if flagReapMs != 0 {
		config.ReapMs = flagReapMs
	}
	if flagPrefix != "" {
		config.Prefix = flagPrefix
	}
	if flagInput != "" {
		config.InputPath = flagInput
	}
	if flagOutputDir != "" {
		config.OutputDir = flagOutputDir
	}
	if flagLogLevel != "" {
		config.LogLevel = flagLogLevel
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "inject-sei-timestamps" {
			config.InjectSEITimestamps = flagInjectSEI
		}
	})

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that Codec, TimeoutMs/ReapMs, Prefix, and LogLevel
// carry values the library and CLI can act on.
func (c *Config) Validate() error {
	if _, err := c.RTPCodec(); err != nil {
		return err
	}
	if c.TimeoutMs <= 0 {
		return fmt.Errorf("invalid timeout-ms %d: must be positive", c.TimeoutMs)
	}
	if c.ReapMs <= 0 {
		return fmt.Errorf("invalid reap-ms %d: must be positive", c.ReapMs)
	}
	if _, err := c.RTPPrefix(); err != nil {
		return err
	}
	if c.LogLevel != "" {
		if _, err := logger.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}
	return nil
}

// RTPCodec translates the configured codec name into an rtp.Codec.
func (c *Config) RTPCodec() (rtp.Codec, error) {
	switch strings.ToLower(c.Codec) {
	case "h264":
		return rtp.CodecH264, nil
	case "opus":
		return rtp.CodecOpus, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected h264 or opus)", ErrInvalidCodec, c.Codec)
	}
}

// RTPPrefix translates the configured prefix name into an rtp.Prefix.
func (c *Config) RTPPrefix() (rtp.Prefix, error) {
	switch strings.ToLower(c.Prefix) {
	case "none":
		return rtp.PrefixNone, nil
	case "annexb":
		return rtp.PrefixAnnexB, nil
	case "avcc":
		return rtp.PrefixAVCC, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected none, annexb, or avcc)", ErrInvalidPrefix, c.Prefix)
	}
}

// GetLogLevel returns the logger.Level for the configured log level,
// defaulting to LevelInfo if unset or unparseable.
func (c *Config) GetLogLevel() logger.Level {
	if c.LogLevel == "" {
		return logger.LevelInfo
	}
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return logger.LevelInfo
	}
	return level
}

// Timeout and Reap convert the millisecond durations into time.Duration
// for rtp.NewDepacketizer.
func (c *Config) Timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }
func (c *Config) Reap() time.Duration    { return time.Duration(c.ReapMs) * time.Millisecond }

// String returns a human-readable summary of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Configuration:\n  Codec: %s\n  Timeout: %dms\n  Reap: %dms\n  Prefix: %s\n  Inject SEI timestamps: %t\n  Input: %s\n  Output Dir: %s\n  Log Level: %s",
		c.Codec, c.TimeoutMs, c.ReapMs, c.Prefix, c.InjectSEITimestamps, c.InputPath, c.OutputDir, c.LogLevel,
	)
}
