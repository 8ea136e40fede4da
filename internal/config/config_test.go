package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, 200, c.OCRDPI)
	assert.Equal(t, 300, c.OCRRetryDPI)
	assert.Equal(t, 384, c.EmbedDim)
	assert.Equal(t, time.Hour, c.JobTTL)
	assert.NoError(t, c.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "port: \"9000\"\nocr_dpi: 150\nocr_retry_dpi: 250\nextract_timeout: 45s\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("OCR_DPI", "")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", c.Port, "env wins over file")
	assert.Equal(t, 150, c.OCRDPI, "file wins over default")
	assert.Equal(t, 250, c.OCRRetryDPI)
	assert.Equal(t, 45*time.Second, c.ExtractTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"short secret", func(c *Config) { c.InternalSharedSecret = "short" }, true},
		{"long secret", func(c *Config) { c.InternalSharedSecret = "0123456789abcdef0123456789abcdef" }, false},
		{"unknown engine", func(c *Config) { c.OCREngine = "paddle" }, true},
		{"mistral without key", func(c *Config) { c.OCREngine = "mistral" }, true},
		{"retry dpi lower", func(c *Config) { c.OCRRetryDPI = 100 }, true},
		{"http embed without endpoint", func(c *Config) { c.EmbedProvider = "http" }, true},
		{"http embed with endpoint", func(c *Config) {
			c.EmbedProvider = "http"
			c.EmbedEndpoint = "http://embed:8080/v1/embeddings"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvHelpersRejectInvalid(t *testing.T) {
	t.Setenv("X_INT", "-3")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_FLOAT", "abc")

	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, time.Second, envDur("X_DUR", time.Second))
	assert.Equal(t, 0.5, envFloat("X_FLOAT", 0.5))
}
