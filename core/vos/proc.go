package vos

import (
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotFound is the error resulting if a path search failed to find an executable file.
var ErrNotFound = exec.ErrNotFound

func findExecutable(fsys afero.Fs, file string) error {
	d, err := fsys.Stat(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case err != nil:
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// LookPath searches for an executable named file in the directories named by
// path, a colon separated list. If file contains a slash, it is tried directly
// and the path is not consulted. Relative names are resolved against dir.
//
// The first executable match wins. If the only matches lack execute
// permission the result is fs.ErrPermission, otherwise ErrNotFound.
func LookPath(fsys afero.Fs, dir, path, file string) (string, error) {
	if file == "" {
		return "", ErrNotFound
	}
	if strings.Contains(file, "/") {
		full := resolve(dir, file)
		if err := findExecutable(fsys, full); err != nil {
			return "", err
		}
		return full, nil
	}

	var denied bool
	for _, elem := range filepath.SplitList(path) {
		if elem == "" {
			// Unix shell semantics: path element "" means "."
			elem = "."
		}
		candidate := resolve(dir, filepath.Join(elem, file))
		switch err := findExecutable(fsys, candidate); {
		case err == nil:
			return candidate, nil
		case errors.Is(err, fs.ErrPermission):
			denied = true
		}
	}
	if denied {
		return "", fs.ErrPermission
	}
	return "", ErrNotFound
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
