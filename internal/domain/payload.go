package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// ContentPayload streams the bytes of a binary.
type ContentPayload interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ReferenceResolver opens the content behind an external location.
type ReferenceResolver interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

type BytesPayload []byte

func (b BytesPayload) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// ReaderPayload wraps a one-shot reader, e.g. a local file handed to the CLI.
type ReaderPayload struct {
	R io.Reader
}

func (r ReaderPayload) Open(context.Context) (io.ReadCloser, error) {
	if rc, ok := r.R.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(r.R), nil
}

// FilePayload reads a file that lives in managed storage.
type FilePayload struct {
	Fs   afero.Fs
	Path string
}

func (f FilePayload) Open(context.Context) (io.ReadCloser, error) {
	return f.Fs.Open(f.Path)
}

// ManifestPayload renders shallow files as a newline delimited JSON manifest.
type ManifestPayload struct {
	Files []ShallowFile
}

func (m ManifestPayload) Open(context.Context) (io.ReadCloser, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, sf := range m.Files {
		if err := enc.Encode(sf); err != nil {
			return nil, fmt.Errorf("encoding shallow file %s: %w", sf.Name, err)
		}
	}
	return io.NopCloser(&buf), nil
}

// ReferencePayload opens the external location of a shallow file.
type ReferencePayload struct {
	File     ShallowFile
	Resolver ReferenceResolver
}

func (r ReferencePayload) Open(ctx context.Context) (io.ReadCloser, error) {
	if r.Resolver == nil {
		return nil, fmt.Errorf("no resolver for reference %s", r.File.Location)
	}
	return r.Resolver.Open(ctx, r.File.Location)
}

// WritePayload copies the payload into w.
func WritePayload(ctx context.Context, p ContentPayload, w io.Writer) (int64, error) {
	rc, err := p.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return io.Copy(w, rc)
}
