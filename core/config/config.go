package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	DirName           = "jsh"
)

type Configuration struct {
	configFs afero.Fs
	dir      string

	Options      Options `json:"options"`
	GlobPolicy   string  `json:"glob_policy" validate:"oneof=literal empty error"`
	Path         string  `json:"path" validate:"required"`
	Prompt       string  `json:"prompt"`
	RCFile       string  `json:"rc_file"`
	HistoryFile  string  `json:"history_file"`
	HistoryLimit int     `json:"history_limit" validate:"gte=0"`
	JobControl   string  `json:"job_control" validate:"oneof=auto on off"`
	EventLog     string  `json:"event_log"`
}

// Options are the shell options set at startup.
type Options struct {
	Errexit  bool `json:"errexit"`
	Xtrace   bool `json:"xtrace"`
	Nounset  bool `json:"nounset"`
	Pipefail bool `json:"pipefail"`
	Noglob   bool `json:"noglob"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	if c.configFs == nil {
		return afero.NewMemMapFs()
	}
	return c.configFs
}

// Dir is the directory the configuration was loaded from.
func (c *Configuration) Dir() string {
	return c.dir
}

func (c *Configuration) resolve(name string) string {
	switch {
	case name == "":
		return ""
	case name == "~" || strings.HasPrefix(name, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(name, "~"))
		}
		return name
	case filepath.IsAbs(name) || c.dir == "":
		return name
	}
	return filepath.Join(c.dir, name)
}

// HistoryPath returns the history file's path, or "" if history is off.
func (c *Configuration) HistoryPath() string {
	return c.resolve(c.HistoryFile)
}

// RCPath returns the startup file's path, or "" if there is none.
func (c *Configuration) RCPath() string {
	return c.resolve(c.RCFile)
}

// OpenEventLog opens the event log in an append only state. It returns
// nil if the event log is disabled.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	if c.EventLog == "" {
		return nil, nil
	}
	return c.fs().OpenFile(c.EventLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// ReadEventLog opens the event log for reading.
func (c *Configuration) ReadEventLog() (afero.File, error) {
	if c.EventLog == "" {
		return nil, fmt.Errorf("event_log isn't configured in %s", ConfigurationName)
	}
	return c.fs().OpenFile(c.EventLog, os.O_RDONLY, 0600)
}

// DefaultDir is $XDG_CONFIG_HOME/jsh or its platform equivalent.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, DirName)
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Default returns the built-in configuration, not tied to any directory.
func Default() *Configuration {
	return defaultConfig()
}

// Load loads the configuration from the directory.
func Load(path string) (*Configuration, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs loads the configuration from the directory in fsys. A missing
// config file gives the defaults; fields that are present override them.
func LoadFs(fsys afero.Fs, path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	out := defaultConfig()
	configFs := afero.NewBasePathFs(fsys, path)
	configContents, err := afero.ReadFile(configFs, ConfigurationName)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.UnmarshalStrict(configContents, out); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Join(path, ConfigurationName), err)
		}
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	out.configFs = configFs
	out.dir = path
	return out, nil
}

// Initialize writes the default configuration to dir unless one exists.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	return InitializeFs(afero.NewOsFs(), dir, logger)
}

// InitializeFs is Initialize on an arbitrary filesystem.
func InitializeFs(fsys afero.Fs, dir string, logger *log.Logger) (*Configuration, error) {
	if err := fsys.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, ConfigurationName)
	switch _, err := fsys.Stat(configPath); {
	case err == nil:
		logger.Printf("%s already exists, leaving it alone", configPath)
	case errors.Is(err, fs.ErrNotExist):
		if err := afero.WriteFile(fsys, configPath, defaultConfigData, 0600); err != nil {
			return nil, err
		}
		logger.Printf("Wrote %s", configPath)
	default:
		return nil, err
	}

	return LoadFs(fsys, dir)
}
