package core

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jswans33/james-shell-sub001/core/expand"
	"github.com/jswans33/james-shell-sub001/core/shell"
	"github.com/jswans33/james-shell-sub001/core/vos"
)

var (
	errBadFd     = errors.New("bad file descriptor")
	errAmbiguous = errors.New("ambiguous redirect")
)

const (
	flagsInput  = os.O_RDONLY
	flagsOutput = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	flagsAppend = os.O_WRONLY | os.O_CREATE | os.O_APPEND
)

// redirect applies rs to files from left to right. Files it opens are
// returned for the caller to close once the command is done with them,
// including when an error stops the list part way.
func (s *Shell) redirect(ctx context.Context, files *vos.Files, rs []*shell.Redirect) ([]io.Closer, error) {
	var opened []io.Closer
	for _, r := range rs {
		closer, err := s.redirectOne(ctx, files, r)
		if closer != nil {
			opened = append(opened, closer)
		}
		if err != nil {
			return opened, err
		}
	}
	return opened, nil
}

func (s *Shell) redirectOne(ctx context.Context, files *vos.Files, r *shell.Redirect) (io.Closer, error) {
	cfg := s.expandConfig()

	switch r.Kind {
	case shell.HereDocument:
		body, err := expand.Document(ctx, cfg, r.Body, r.BodyQuoted)
		if err != nil {
			return nil, err
		}
		files.Set(r.Fd, vos.Stream{Reader: strings.NewReader(body)})
		return nil, nil

	case shell.HereStringInput:
		text, err := expand.Literal(ctx, cfg, r.Target)
		if err != nil {
			return nil, err
		}
		files.Set(r.Fd, vos.Stream{Reader: strings.NewReader(text + "\n")})
		return nil, nil

	case shell.DuplicateOutput, shell.DuplicateInput:
		target, err := expand.Literal(ctx, cfg, r.Target)
		if err != nil {
			return nil, err
		}
		if target == "-" {
			files.Close(r.Fd)
			return nil, nil
		}
		src, err := strconv.Atoi(target)
		if err != nil || src < 0 {
			if r.Kind == shell.DuplicateOutput && r.Fd == 1 {
				// >&file sends both stdout and stderr to file.
				c, err := s.openTarget(files, 1, target, flagsOutput)
				if err == nil {
					stream, _ := files.Get(1)
					files.Set(2, stream)
				}
				return c, err
			}
			return nil, &RedirectError{Target: target, Err: errAmbiguous}
		}
		stream, ok := files.Get(src)
		if !ok {
			return nil, &RedirectError{Target: target, Err: errBadFd}
		}
		files.Set(r.Fd, stream)
		return nil, nil
	}

	fields, err := expand.Fields(ctx, cfg, r.Target)
	if err != nil {
		return nil, err
	}
	if len(fields) != 1 {
		return nil, &RedirectError{Target: r.Target.Literal(), Err: errAmbiguous}
	}

	flags := flagsInput
	switch r.Kind {
	case shell.Output:
		flags = flagsOutput
	case shell.Append:
		flags = flagsAppend
	}
	return s.openTarget(files, r.Fd, fields[0], flags)
}

// openTarget opens name for fd through the shell's filesystem.
func (s *Shell) openTarget(files *vos.Files, fd int, name string, flags int) (io.Closer, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	f, err := s.fs.OpenFile(path, flags, 0666)
	if err != nil {
		return nil, &RedirectError{Target: name, Err: err}
	}

	if osFile, ok := f.(*os.File); ok {
		files.Set(fd, vos.FileStream(osFile))
		return f, nil
	}
	if flags == flagsInput {
		files.Set(fd, vos.Stream{Reader: f})
	} else {
		files.Set(fd, vos.Stream{Writer: f})
	}
	return f, nil
}
