package vos

import (
	"io"
	"os"
	"sort"
)

// Stream is one entry in a descriptor table. Input descriptors set Reader,
// output descriptors set Writer; an *os.File may be both.
type Stream struct {
	Reader io.Reader
	Writer io.Writer
}

// FileStream wraps an open file for both directions.
func FileStream(f *os.File) Stream {
	return Stream{Reader: f, Writer: f}
}

// File returns the operating system file behind the stream, if there is one.
// Streams without a file must be bridged through a pipe before they can be
// handed to a child process.
func (s Stream) File() (*os.File, bool) {
	if f, ok := s.Writer.(*os.File); ok && f != nil {
		return f, true
	}
	if f, ok := s.Reader.(*os.File); ok && f != nil {
		return f, true
	}
	return nil, false
}

// Files is a descriptor table mapping small integers to streams. It is owned
// by a single goroutine; Clone before handing it to another one.
type Files struct {
	fds map[int]Stream
}

// NewFiles creates a table with the three standard descriptors. Nil values
// leave the descriptor closed.
func NewFiles(stdin io.Reader, stdout, stderr io.Writer) *Files {
	f := &Files{fds: make(map[int]Stream)}
	if stdin != nil {
		f.Set(0, Stream{Reader: stdin})
	}
	if stdout != nil {
		f.Set(1, Stream{Writer: stdout})
	}
	if stderr != nil {
		f.Set(2, Stream{Writer: stderr})
	}
	return f
}

// Get returns the stream at fd.
func (f *Files) Get(fd int) (Stream, bool) {
	s, ok := f.fds[fd]
	return s, ok
}

// Set points fd at s.
func (f *Files) Set(fd int, s Stream) {
	if f.fds == nil {
		f.fds = make(map[int]Stream)
	}
	f.fds[fd] = s
}

// Close removes fd from the table. The underlying stream is not closed, the
// table does not own it.
func (f *Files) Close(fd int) {
	delete(f.fds, fd)
}

// Fds returns the open descriptors in ascending order.
func (f *Files) Fds() []int {
	var out []int
	for fd := range f.fds {
		out = append(out, fd)
	}
	sort.Ints(out)
	return out
}

// Clone returns a copy of the table sharing the same streams.
func (f *Files) Clone() *Files {
	out := &Files{fds: make(map[int]Stream, len(f.fds))}
	for fd, s := range f.fds {
		out.fds[fd] = s
	}
	return out
}

// Stdin returns descriptor 0, or a reader that always fails if it is closed.
func (f *Files) Stdin() io.Reader {
	if s, ok := f.Get(0); ok && s.Reader != nil {
		return s.Reader
	}
	return &ClosedReader{}
}

// Stdout returns descriptor 1, or a writer that fails if it is closed.
func (f *Files) Stdout() io.Writer {
	return f.writer(1)
}

// Stderr returns descriptor 2, or a writer that fails if it is closed.
func (f *Files) Stderr() io.Writer {
	return f.writer(2)
}

func (f *Files) writer(fd int) io.Writer {
	if s, ok := f.Get(fd); ok && s.Writer != nil {
		return s.Writer
	}
	return &ClosedWriter{}
}

// ClosedReader implements io.Reader and always throws ErrClosed on Read.
type ClosedReader struct{}

var _ io.ReadCloser = (*ClosedReader)(nil)

func (*ClosedReader) Read([]byte) (int, error) {
	return 0, os.ErrClosed
}

func (*ClosedReader) Close() error {
	return nil
}

// ClosedWriter implements io.Writer and always throws ErrClosed on Write.
type ClosedWriter struct{}

var _ io.WriteCloser = (*ClosedWriter)(nil)

func (*ClosedWriter) Write([]byte) (int, error) {
	return 0, os.ErrClosed
}

func (*ClosedWriter) Close() error {
	return nil
}
