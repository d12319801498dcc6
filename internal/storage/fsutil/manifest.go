package fsutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/ETERNA-earkiv/ETERNA/internal/domain"
	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
)

// DefaultManifestName is the leaf name of a directory's external files manifest.
const DefaultManifestName = "external_files.manifest"

const maxManifestLine = 1 << 20

// IsManifest reports whether p is named like a manifest.
func IsManifest(p, manifestName string) bool {
	return filepath.Base(p) == manifestName
}

// NewLineScanner returns a scanner sized for long manifest lines.
func NewLineScanner(f afero.File) *bufio.Scanner {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxManifestLine)
	return sc
}

// DecodeShallowFile parses one manifest line.
func DecodeShallowFile(line []byte) (domain.ShallowFile, error) {
	var sf domain.ShallowFile
	if err := json.Unmarshal(line, &sf); err != nil {
		return sf, serr.Generic(err, "corrupted manifest line")
	}
	return sf, nil
}

// ReadManifest loads every record of the manifest at p. A missing manifest is
// empty.
func ReadManifest(fsys afero.Fs, p string) ([]domain.ShallowFile, error) {
	f, err := fsys.Open(p)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, serr.Generic(err, "cannot open manifest %s", p)
	}
	defer f.Close()

	var files []domain.ShallowFile
	sc := NewLineScanner(f)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		sf, err := DecodeShallowFile(line)
		if err != nil {
			return nil, serr.Generic(err, "cannot read manifest %s", p)
		}
		files = append(files, sf)
	}
	if err := sc.Err(); err != nil {
		return nil, serr.Generic(err, "cannot read manifest %s", p)
	}
	return files, nil
}

// WriteManifest replaces the manifest at p with files.
func WriteManifest(fsys afero.Fs, p string, files []domain.ShallowFile) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, sf := range files {
		if err := enc.Encode(sf); err != nil {
			return serr.Generic(err, "cannot encode manifest entry %s", sf.Name)
		}
	}
	_, err := WriteFile(fsys, p, &buf)
	return err
}

// FindInManifest looks up the entity at entityPath in its parent's manifest.
func FindInManifest(fsys afero.Fs, entityPath, manifestName string) (domain.ShallowFile, bool, error) {
	files, err := ReadManifest(fsys, manifestFor(entityPath, manifestName))
	if err != nil {
		return domain.ShallowFile{}, false, err
	}
	name := DecodePathPartial(filepath.Base(entityPath))
	for _, sf := range files {
		if sf.Name == name {
			return sf, true, nil
		}
	}
	return domain.ShallowFile{}, false, nil
}

// RemoveFromManifest drops the record of entityPath from its parent's manifest.
func RemoveFromManifest(fsys afero.Fs, entityPath, manifestName string) (bool, error) {
	mp := manifestFor(entityPath, manifestName)
	files, err := ReadManifest(fsys, mp)
	if err != nil {
		return false, err
	}
	name := DecodePathPartial(filepath.Base(entityPath))
	kept := files[:0]
	for _, sf := range files {
		if sf.Name != name {
			kept = append(kept, sf)
		}
	}
	if len(kept) == len(files) {
		return false, nil
	}
	return true, WriteManifest(fsys, mp, kept)
}

func manifestFor(entityPath, manifestName string) string {
	return filepath.Join(filepath.Dir(entityPath), manifestName)
}
