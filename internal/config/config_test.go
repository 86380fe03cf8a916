package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nalstream/rtpdepacketizer/pkg/logger"
	"github.com/nalstream/rtpdepacketizer/pkg/rtp"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		expectError bool
	}{
		{
			name: "valid h264 configuration",
			config: &Config{
				Codec:     "h264",
				TimeoutMs: 5000,
				ReapMs:    200,
				Prefix:    "annexb",
			},
			expectError: false,
		},
		{
			name: "valid opus configuration",
			config: &Config{
				Codec:     "opus",
				TimeoutMs: 1000,
				ReapMs:    50,
				Prefix:    "none",
			},
			expectError: false,
		},
		{
			name: "unknown codec",
			config: &Config{
				Codec:     "vp8",
				TimeoutMs: 5000,
				ReapMs:    200,
				Prefix:    "annexb",
			},
			expectError: true,
		},
		{
			name: "zero timeout",
			config: &Config{
				Codec:     "h264",
				TimeoutMs: 0,
				ReapMs:    200,
				Prefix:    "annexb",
			},
			expectError: true,
		},
		{
			name: "unknown prefix",
			config: &Config{
				Codec:     "h264",
				TimeoutMs: 5000,
				ReapMs:    200,
				Prefix:    "weird",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_RTPCodec(t *testing.T) {
	c := &Config{Codec: "h264"}
	codec, err := c.RTPCodec()
	require.NoError(t, err)
	assert.Equal(t, rtp.CodecH264, codec)

	c = &Config{Codec: "OPUS"}
	codec, err = c.RTPCodec()
	require.NoError(t, err)
	assert.Equal(t, rtp.CodecOpus, codec)

	c = &Config{Codec: "bogus"}
	_, err = c.RTPCodec()
	assert.ErrorIs(t, err, ErrInvalidCodec)
}

func TestConfig_RTPPrefix(t *testing.T) {
	c := &Config{Prefix: "avcc"}
	prefix, err := c.RTPPrefix()
	require.NoError(t, err)
	assert.Equal(t, rtp.PrefixAVCC, prefix)

	c = &Config{Prefix: "bogus"}
	_, err = c.RTPPrefix()
	assert.ErrorIs(t, err, ErrInvalidPrefix)
}

func TestConfig_GetLogLevel(t *testing.T) {
	c := &Config{}
	assert.Equal(t, logger.LevelInfo, c.GetLogLevel())

	c = &Config{LogLevel: "debug"}
	assert.Equal(t, logger.LevelDebug, c.GetLogLevel())

	c = &Config{LogLevel: "not-a-level"}
	assert.Equal(t, logger.LevelInfo, c.GetLogLevel())
}

func TestConfig_SetDefaults(t *testing.T) {
	c := &Config{}
	c.setDefaults()

	assert.Equal(t, "h264", c.Codec)
	assert.Equal(t, 5000, c.TimeoutMs)
	assert.Equal(t, 200, c.ReapMs)
	assert.Equal(t, "annexb", c.Prefix)
	assert.Equal(t, "./frames", c.OutputDir)
	assert.Equal(t, "info", c.LogLevel)
}

func TestConfig_Merge(t *testing.T) {
	c := &Config{Codec: "h264", Prefix: "annexb"}
	other := &Config{Codec: "opus", ReapMs: 50}
	present := map[string]bool{"codec": true, "reap_ms": true}

	c.merge(other, present)

	assert.Equal(t, "opus", c.Codec)
	assert.Equal(t, 50, c.ReapMs)
	assert.Equal(t, "annexb", c.Prefix, "prefix was not present in YAML, must be untouched")
}

func TestIsYAMLFile(t *testing.T) {
	assert.True(t, isYAMLFile("config.yaml"))
	assert.True(t, isYAMLFile("config.yml"))
	assert.True(t, isYAMLFile("CONFIG.YAML"))
	assert.False(t, isYAMLFile("config.json"))
	assert.False(t, isYAMLFile("config"))
}
