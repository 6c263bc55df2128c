// Package iowriter implements gncity.FeatureWriter for JSON Lines feature
// documents. Every line is one feature or one link.
package iowriter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gnames/gn"
	"github.com/gnames/gncity/pkg/errcode"
	"github.com/gnames/gncity/pkg/feature"
	"github.com/gnames/gnfmt"
)

// Document types.
const (
	TypeFeature = "feature"
	TypeLink    = "link"
)

type featureDoc struct {
	Type string `json:"type"`
	feature.Feature
}

type linkDoc struct {
	Type string `json:"type"`
	feature.Link
}

// Writer writes documents to one file. It is safe for concurrent use, a
// document is always written as a whole line.
type Writer struct {
	path string
	enc  gnfmt.GNjson

	mu       sync.Mutex
	f        *os.File
	w        *bufio.Writer
	features int64
	links    int64
	closed   bool
}

// New creates the output file and its directory. An existing file is
// truncated.
func New(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, createError(path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, createError(path, err)
	}

	res := &Writer{
		path: path,
		f:    f,
		w:    bufio.NewWriterSize(f, 1<<16),
	}
	return res, nil
}

// Path returns the location of the output file.
func (w *Writer) Path() string {
	return w.path
}

// WriteFeature writes a feature document.
func (w *Writer) WriteFeature(f feature.Feature) error {
	bs, err := w.enc.Encode(featureDoc{Type: TypeFeature, Feature: f})
	if err != nil {
		return writeError(w.path, f.GMLID, err)
	}
	if err = w.writeLine(bs); err != nil {
		return writeError(w.path, f.GMLID, err)
	}

	w.mu.Lock()
	w.features++
	w.mu.Unlock()
	return nil
}

// WriteLink writes a link document.
func (w *Writer) WriteLink(l feature.Link) error {
	bs, err := w.enc.Encode(linkDoc{Type: TypeLink, Link: l})
	if err != nil {
		return writeError(w.path, l.SourceGMLID, err)
	}
	if err = w.writeLine(bs); err != nil {
		return writeError(w.path, l.SourceGMLID, err)
	}

	w.mu.Lock()
	w.links++
	w.mu.Unlock()
	return nil
}

func (w *Writer) writeLine(bs []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if _, err := w.w.Write(bs); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Counts returns the number of written features and links.
func (w *Writer) Counts() (features, links int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.features, w.links
}

// Close flushes buffered documents and closes the file. Calling it again
// does nothing.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.w.Flush()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return writeError(w.path, "", err)
	}
	return nil
}

func createError(path string, err error) error {
	msg := "Cannot create output file <em>%s</em>"
	vars := []any{path}
	return &gn.Error{
		Code: errcode.CreateOutputError,
		Msg:  msg,
		Vars: vars,
		Err:  fmt.Errorf("failed to create %s: %w", path, err),
	}
}

func writeError(path, gmlID string, err error) error {
	msg := "Cannot write <em>%s</em> to <em>%s</em>"
	vars := []any{gmlID, path}
	return &gn.Error{
		Code: errcode.ExportWriteError,
		Msg:  msg,
		Vars: vars,
		Err:  fmt.Errorf("failed to write %q to %s: %w", gmlID, path, err),
	}
}
