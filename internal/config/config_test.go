package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FerroO2000/relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name     string        `json:"name" yaml:"name" toml:"name"`
	Capacity int           `json:"capacity" yaml:"capacity" toml:"capacity"`
	Mode     string        `json:"mode" yaml:"mode" toml:"mode"`
	Dirs     []string      `json:"dirs" yaml:"dirs" toml:"dirs"`
	Interval time.Duration `json:"interval" yaml:"interval" toml:"interval"`
}

func (c *testConfig) Validate(ac *AnomalyCollector) {
	CheckNotEmpty(ac, "Name", &c.Name, "default")
	CheckPositive(ac, "Capacity", &c.Capacity, 64)
	CheckNotGreater(ac, "Capacity", &c.Capacity, 1024)
	CheckOneOf(ac, "Mode", &c.Mode, "continue", "continue", "fatal")
	CheckLen(ac, "Dirs", &c.Dirs, []string{"."})
	CheckNotNegative(ac, "Interval", &c.Interval, time.Second)
	CheckNotZero(ac, "Interval", &c.Interval, time.Second)
}

func Test_Validate(t *testing.T) {
	suite := []struct {
		name      string
		cfg       testConfig
		expected  testConfig
		anomalies int
	}{
		{
			name:      "valid",
			cfg:       testConfig{Name: "a", Capacity: 8, Mode: "fatal", Dirs: []string{"in"}, Interval: time.Minute},
			expected:  testConfig{Name: "a", Capacity: 8, Mode: "fatal", Dirs: []string{"in"}, Interval: time.Minute},
			anomalies: 0,
		},
		{
			name:      "zero values",
			cfg:       testConfig{},
			expected:  testConfig{Name: "default", Capacity: 64, Mode: "continue", Dirs: []string{"."}, Interval: time.Second},
			anomalies: 5,
		},
		{
			name:      "out of range",
			cfg:       testConfig{Name: "a", Capacity: 4096, Mode: "panic", Dirs: []string{"in"}, Interval: -time.Second},
			expected:  testConfig{Name: "a", Capacity: 1024, Mode: "continue", Dirs: []string{"in"}, Interval: time.Second},
			anomalies: 3,
		},
	}

	for _, tCase := range suite {
		t.Run(tCase.name, func(t *testing.T) {
			assert := assert.New(t)

			validator := NewValidator(internal.NewTelemetry("test", tCase.name))

			cfg := tCase.cfg
			assert.Equal(tCase.anomalies, validator.Validate(&cfg))
			assert.Equal(tCase.expected, cfg)
		})
	}
}

func Test_AnomalyCollector(t *testing.T) {
	assert := assert.New(t)

	ac := NewAnomalyCollector()
	val := -1
	CheckNotNegative(ac, "Value", &val, 3)

	assert.Equal(1, ac.Len())
	for an := range ac.Iter() {
		assert.Equal("Value", an.Field)
		assert.Equal(-1, an.Actual)
		assert.Equal(3, an.Fallback)
		assert.Equal("Value cannot be negative (got -1, using 3)", an.String())
	}
}

func Test_CheckLen_CopiesFallback(t *testing.T) {
	assert := assert.New(t)

	fallback := []string{"."}

	var dirs []string
	CheckLen(NewAnomalyCollector(), "Dirs", &dirs, fallback)
	assert.Equal([]string{"."}, dirs)

	dirs[0] = "in"
	assert.Equal([]string{"."}, fallback)
}

func Test_FormatOf(t *testing.T) {
	suite := []struct {
		path     string
		expected Format
		err      bool
	}{
		{"relay.json", FormatJSON, false},
		{"relay.yaml", FormatYAML, false},
		{"relay.yml", FormatYAML, false},
		{"/etc/relay/relay.TOML", FormatTOML, false},
		{"relay.ini", "", true},
		{"relay", "", true},
	}

	for _, tCase := range suite {
		t.Run(tCase.path, func(t *testing.T) {
			format, err := FormatOf(tCase.path)
			if tCase.err {
				assert.ErrorIs(t, err, ErrUnknownExtension)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tCase.expected, format)
		})
	}
}

func Test_DecodeFile(t *testing.T) {
	files := map[string]string{
		"relay.json": `{"name": "json", "capacity": 16, "mode": "fatal", "dirs": ["a", "b"], "interval": 2000000000}`,
		"relay.yaml": "name: yaml\ncapacity: 16\nmode: fatal\ndirs: [a, b]\ninterval: 2s\n",
		"relay.toml": "name = \"toml\"\ncapacity = 16\nmode = \"fatal\"\ndirs = [\"a\", \"b\"]\ninterval = \"2s\"\n",
	}

	dir := t.TempDir()

	for fileName, content := range files {
		t.Run(fileName, func(t *testing.T) {
			assert := assert.New(t)

			path := filepath.Join(dir, fileName)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			var cfg testConfig
			assert.NoError(DecodeFile(path, &cfg))

			assert.Equal(16, cfg.Capacity)
			assert.Equal("fatal", cfg.Mode)
			assert.Equal([]string{"a", "b"}, cfg.Dirs)
			assert.Equal(2*time.Second, cfg.Interval)
			assert.Equal(fileName[len("relay."):], cfg.Name)
		})
	}
}

func Test_DecodeFile_Errors(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()

	var cfg testConfig

	assert.ErrorIs(DecodeFile(filepath.Join(dir, "relay.ini"), &cfg), ErrUnknownExtension)
	assert.ErrorIs(DecodeFile(filepath.Join(dir, "missing.yaml"), &cfg), os.ErrNotExist)

	for fileName, content := range map[string]string{
		"unknown.json": `{"unknown": 1}`,
		"unknown.yaml": "unknown: 1\n",
		"unknown.toml": "unknown = 1\n",
	} {
		path := filepath.Join(dir, fileName)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		assert.Error(DecodeFile(path, &cfg), fileName)
	}
}
