package config

import (
	"bytes"
	"io"
	"log"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestBuiltinConfig(t *testing.T) {
	rawConfig := make(map[string]interface{})
	assert.Nil(t, yaml.Unmarshal(defaultConfigData, &rawConfig))

	knownFields := make(map[string]bool)
	rt := reflect.TypeOf(Configuration{})
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		assert.NotEmpty(t, jsonTag)
		jsonField := strings.Split(jsonTag, ",")[0]
		knownFields[jsonField] = true

		if _, ok := rawConfig[jsonField]; !ok {
			assert.False(t, true, "default config missing field: %q", jsonField)
		}
	}

	for k := range rawConfig {
		_, ok := knownFields[k]
		assert.True(t, ok, "default config contains invalid field: %q", k)
	}
}

func TestDefaultConfig(t *testing.T) {
	// Will panic() on load failure because it should never happen at runtime.
	cfg := defaultConfig()
	assert.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "literal", cfg.GlobPolicy)
	assert.Equal(t, "auto", cfg.JobControl)
	assert.Equal(t, `\u@\h:\w\$ `, cfg.Prompt)
}

func TestLoadFs(t *testing.T) {
	t.Run("missing file gives defaults", func(t *testing.T) {
		cfg, err := LoadFs(afero.NewMemMapFs(), "/etc/jsh")
		require.NoError(t, err)
		assert.Equal(t, defaultConfig().Path, cfg.Path)
		assert.Equal(t, "/etc/jsh", cfg.Dir())
		assert.Equal(t, "/etc/jsh/history", cfg.HistoryPath())
	})

	t.Run("overrides merge with defaults", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fsys, "/etc/jsh/config.yaml", []byte(`
options:
  pipefail: true
glob_policy: error
history_file: ""
`), 0600))

		cfg, err := LoadFs(fsys, "/etc/jsh/config.yaml")
		require.NoError(t, err)
		assert.True(t, cfg.Options.Pipefail)
		assert.False(t, cfg.Options.Errexit)
		assert.Equal(t, "error", cfg.GlobPolicy)
		assert.Equal(t, "auto", cfg.JobControl)
		assert.Equal(t, "", cfg.HistoryPath())
	})

	t.Run("unknown field", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fsys, "/c/config.yaml", []byte("colour: red\n"), 0600))
		_, err := LoadFs(fsys, "/c")
		assert.Error(t, err)
	})

	t.Run("invalid value", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fsys, "/c/config.yaml", []byte("job_control: sometimes\n"), 0600))
		_, err := LoadFs(fsys, "/c")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "job_control")
	})
}

func TestInitializeFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	var logs bytes.Buffer
	logger := log.New(&logs, "", 0)

	cfg, err := InitializeFs(fsys, "/home/u/.config/jsh", logger)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "Wrote")

	written, err := afero.ReadFile(fsys, filepath.Join("/home/u/.config/jsh", ConfigurationName))
	require.NoError(t, err)
	assert.Equal(t, defaultConfigData, written)

	require.NoError(t, afero.WriteFile(fsys, "/home/u/.config/jsh/config.yaml", []byte("prompt: '> '\n"), 0600))
	cfg, err = InitializeFs(fsys, "/home/u/.config/jsh", logger)
	require.NoError(t, err)
	assert.Equal(t, "> ", cfg.Prompt, "existing config is kept")
}

func TestEventLog(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/c/config.yaml", []byte("event_log: events.log\n"), 0600))
	cfg, err := LoadFs(fsys, "/c")
	require.NoError(t, err)

	w, err := cfg.OpenEventLog()
	require.NoError(t, err)
	_, err = io.WriteString(w, "{}\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := afero.ReadFile(fsys, "/c/events.log")
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))

	r, err := cfg.ReadEventLog()
	require.NoError(t, err)
	r.Close()

	disabled := Default()
	w, err = disabled.OpenEventLog()
	assert.NoError(t, err)
	assert.Nil(t, w)
	_, err = disabled.ReadEventLog()
	assert.Error(t, err)
}
