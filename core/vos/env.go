package vos

import (
	"sort"
	"strings"
	"sync"
)

// VEnv represents a variable table.
type VEnv interface {
	// UserHomeDir returns the current user's home directory.
	UserHomeDir() (string, error)

	// Unsetenv unsets a single variable.
	Unsetenv(key string) error

	// Setenv sets the value of the variable named by the key.
	// It returns an error, if any.
	Setenv(key, value string) error

	// LookupEnv retrieves the value of the variable named by the key.
	// If the variable is present the value (which may be empty) is returned
	// and the boolean is true. Otherwise the returned value will be empty and
	// the boolean will be false.
	LookupEnv(key string) (string, bool)

	// Getenv retrieves the value of the variable named by the key.
	// It returns the value, which will be empty if the variable is not present.
	// To distinguish between an empty value and an unset value, use LookupEnv.
	Getenv(key string) string

	// Environ returns a copy of strings representing the exported
	// environment, in the form "key=value".
	Environ() []string
}

type EnvironFetcher interface {
	// Environ returns a copy of strings representing the environment, in the
	// form "key=value".
	Environ() []string
}

// EnvList adapts a "key=value" slice such as os.Environ() to EnvironFetcher.
type EnvList []string

func (e EnvList) Environ() []string { return e }

// CopyEnv copies all the environment variables from src to dst.
func CopyEnv(dst VEnv, src EnvironFetcher) error {
	for _, e := range src.Environ() {
		key, value := splitEnv(e)
		if err := dst.Setenv(key, value); err != nil {
			return err
		}
	}

	return nil
}

func splitEnv(e string) (string, string) {
	key, value, _ := strings.Cut(e, "=")
	return key, value
}

// NewMapEnv creates a new variable table backed by a map.
func NewMapEnv() *MapEnv {
	return &MapEnv{}
}

// NewMapEnvFromEnvList creates a table from "key=value" pairs, every one of
// which is marked for export.
func NewMapEnvFromEnvList(environ []string) *MapEnv {
	out := &MapEnv{}

	for _, e := range environ {
		key, value := splitEnv(e)
		// Ignore error, it will never be set for MapEnv.
		_ = out.Setenv(key, value)
		out.Export(key)
	}

	return out
}

// MapEnv implements an in-memory VEnv where each variable carries an export
// flag. Only exported variables are passed to child processes.
type MapEnv struct {
	rw       sync.RWMutex
	env      map[string]string
	exported map[string]bool
}

var _ VEnv = (*MapEnv)(nil)

// UserHomeDir implements VEnv.UserHomeDir.
func (m *MapEnv) UserHomeDir() (string, error) {
	return m.Getenv("HOME"), nil
}

// Unsetenv implements VEnv.Unsetenv. The export flag is dropped with the
// value.
func (m *MapEnv) Unsetenv(key string) error {
	m.rw.Lock()
	defer m.rw.Unlock()
	delete(m.env, key)
	delete(m.exported, key)
	return nil
}

// Setenv implements VEnv.Setenv. It leaves the export flag untouched.
func (m *MapEnv) Setenv(key, value string) error {
	m.rw.Lock()
	defer m.rw.Unlock()

	if m.env == nil {
		m.env = make(map[string]string)
	}
	m.env[key] = value
	return nil
}

// Export marks key for export. The variable need not be set yet.
func (m *MapEnv) Export(key string) {
	m.rw.Lock()
	defer m.rw.Unlock()

	if m.exported == nil {
		m.exported = make(map[string]bool)
	}
	m.exported[key] = true
}

// IsExported reports whether key is marked for export.
func (m *MapEnv) IsExported(key string) bool {
	m.rw.RLock()
	defer m.rw.RUnlock()
	return m.exported[key]
}

// LookupEnv implements VEnv.LookupEnv.
func (m *MapEnv) LookupEnv(key string) (string, bool) {
	m.rw.RLock()
	defer m.rw.RUnlock()

	val, ok := m.env[key]
	return val, ok
}

// Getenv implements VEnv.Getenv.
func (m *MapEnv) Getenv(key string) string {
	val, _ := m.LookupEnv(key)
	return val
}

// Environ implements VEnv.Environ, the sorted list of exported variables
// that have a value.
func (m *MapEnv) Environ() []string {
	m.rw.RLock()
	defer m.rw.RUnlock()

	var env []string
	for k, v := range m.env {
		if m.exported[k] {
			env = append(env, k+"="+v)
		}
	}
	sort.Strings(env)
	return env
}

// Variables returns every set variable as a sorted "key=value" list.
func (m *MapEnv) Variables() []string {
	m.rw.RLock()
	defer m.rw.RUnlock()

	var out []string
	for k, v := range m.env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Exported returns the sorted names marked for export, set or not.
func (m *MapEnv) Exported() []string {
	m.rw.RLock()
	defer m.rw.RUnlock()

	var out []string
	for k := range m.exported {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the table.
func (m *MapEnv) Clone() *MapEnv {
	m.rw.RLock()
	defer m.rw.RUnlock()

	out := &MapEnv{
		env:      make(map[string]string, len(m.env)),
		exported: make(map[string]bool, len(m.exported)),
	}
	for k, v := range m.env {
		out.env[k] = v
	}
	for k, v := range m.exported {
		out.exported[k] = v
	}
	return out
}
