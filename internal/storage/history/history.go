// Package history keeps immutable snapshots of binaries in a root parallel to
// the primary tree.
//
// The root has a data subtree holding the snapshots, named
// <leaf><VersionSeparator><id> next to where the live binary would be, and a
// metadata subtree mirroring it with one JSON sidecar per snapshot.
package history

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/ETERNA-earkiv/ETERNA/internal/domain"
	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
	"github.com/ETERNA-earkiv/ETERNA/internal/iterable"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/fsutil"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/translate"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/trash"
)

const (
	DataFolder     = "data"
	MetadataFolder = "metadata"
	// Suffix is appended to the primary root's name to form the history root.
	Suffix = "-history"
)

type Versions = iterable.CloseableIterable[*domain.BinaryVersion]

// Store manages versions of the binaries below basePath.
type Store struct {
	fs           afero.Fs
	tr           *translate.Translator
	trash        *trash.Coordinator
	basePath     string
	dataRoot     string
	metadataRoot string
}

// New returns a store rooted at historyRoot. An empty historyRoot disables
// history: mutations are skipped with a warning and listings are empty.
func New(fsys afero.Fs, tr *translate.Translator, tc *trash.Coordinator, basePath, historyRoot string) *Store {
	s := &Store{fs: fsys, tr: tr, trash: tc, basePath: basePath}
	if historyRoot != "" {
		s.dataRoot = filepath.Join(historyRoot, DataFolder)
		s.metadataRoot = filepath.Join(historyRoot, MetadataFolder)
	}
	return s
}

// RootFor is the default history root of basePath: a sibling named
// <base>-history.
func RootFor(basePath string) string {
	basePath = filepath.Clean(basePath)
	return filepath.Join(filepath.Dir(basePath), filepath.Base(basePath)+Suffix)
}

func (s *Store) Enabled() bool {
	return s.dataRoot != ""
}

func (s *Store) DataRoot() string     { return s.dataRoot }
func (s *Store) MetadataRoot() string { return s.metadataRoot }

// Create snapshots the current bytes of the binary at sp. It returns nil when
// history is disabled.
func (s *Store) Create(sp domain.StoragePath, properties map[string]string) (*domain.BinaryVersion, error) {
	if !s.Enabled() {
		log.WithField("path", sp.String()).Warn("no history configured, skipping version creation")
		return nil, nil
	}

	live := s.tr.EntityPath(s.basePath, sp)
	fi, err := s.fs.Stat(live)
	if err != nil {
		return nil, fsutil.StatError(err, live)
	}
	if !fi.Mode().IsRegular() {
		return nil, serr.NotValid("%s is not a regular file", live)
	}

	id := uuid.NewString()
	dataPath, err := s.tr.VersionPath(s.dataRoot, sp, id)
	if err != nil {
		return nil, err
	}
	if fsutil.Exists(s.fs, dataPath) {
		return nil, serr.AlreadyExists(fs.ErrExist, "binary version id collided: %s", dataPath)
	}

	if err := fsutil.Copy(s.fs, live, dataPath, false); err != nil {
		return nil, err
	}

	if properties == nil {
		properties = map[string]string{}
	}
	meta := domain.BinaryVersion{
		ID:          id,
		CreatedDate: time.Now().UTC(),
		Properties:  properties,
	}
	if err := s.writeMetadata(s.metadataPath(dataPath), meta); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"path": sp.String(), "version": id}).Debug("created binary version")
	return s.convert(dataPath)
}

// Get loads one version of sp.
func (s *Store) Get(sp domain.StoragePath, id string) (*domain.BinaryVersion, error) {
	if !s.Enabled() {
		return nil, serr.NotFound(nil, "no history configured")
	}
	dataPath, err := s.tr.VersionPath(s.dataRoot, sp, id)
	if err != nil {
		return nil, err
	}
	return s.convert(dataPath)
}

// List yields the versions recorded for sp. A binary that never had a version
// has an empty listing.
func (s *Store) List(sp domain.StoragePath) (Versions, error) {
	if !s.Enabled() {
		log.WithField("path", sp.String()).Warn("no history configured, listing no versions")
		return iterable.Empty[*domain.BinaryVersion](), nil
	}

	faux := s.tr.EntityPath(s.dataRoot, sp)
	parent, base := filepath.Dir(faux), filepath.Base(faux)

	f, err := s.fs.Open(parent)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return iterable.Empty[*domain.BinaryVersion](), nil
		}
		return nil, serr.Generic(err, "cannot list versions of %s", sp)
	}

	seq := func(yield func(*domain.BinaryVersion) bool) {
		for {
			names, err := f.Readdirnames(256)
			for _, name := range names {
				if !isVersionOf(name, base) {
					continue
				}
				p := filepath.Join(parent, name)
				v, err := s.convert(p)
				if err != nil {
					log.WithField("path", p).Errorf("error while listing versions: %v", err)
					v = nil
				}
				if !yield(v) {
					return
				}
			}
			if err != nil || len(names) == 0 {
				return
			}
		}
	}
	return iterable.New(seq, f.Close), nil
}

// Revert overwrites the live binary with the bytes of version id.
func (s *Store) Revert(sp domain.StoragePath, id string) error {
	if !s.Enabled() {
		log.WithField("path", sp.String()).Warn("no history configured, skipping revert")
		return nil
	}

	dataPath, err := s.tr.VersionPath(s.dataRoot, sp, id)
	if err != nil {
		return err
	}
	live := s.tr.EntityPath(s.basePath, sp)

	if !fsutil.Exists(s.fs, live) {
		return serr.NotFound(fs.ErrNotExist, "binary does not exist: %s", live)
	}
	if !fsutil.IsFile(s.fs, live) {
		return serr.NotValid("%s is not a regular file", live)
	}

	in, err := s.fs.Open(dataPath)
	if err != nil {
		return fsutil.StatError(err, dataPath)
	}
	defer in.Close()

	_, err = fsutil.WriteFile(s.fs, live, in)
	return err
}

// Delete trashes one version and its sidecar, then prunes empty parents.
func (s *Store) Delete(sp domain.StoragePath, id string) error {
	if !s.Enabled() {
		log.WithField("path", sp.String()).Warn("no history configured, skipping version deletion")
		return nil
	}

	dataPath, err := s.tr.VersionPath(s.dataRoot, sp, id)
	if err != nil {
		return err
	}
	if !fsutil.Exists(s.fs, dataPath) {
		return serr.NotFound(fs.ErrNotExist, "binary version does not exist: %s", dataPath)
	}
	return s.trashVersion(dataPath)
}

// DeleteAllUnder removes the history of sp and everything below it. When the
// history mirror of sp is a directory the whole subtree goes at once,
// otherwise every version of the single binary is trashed.
func (s *Store) DeleteAllUnder(sp domain.StoragePath) error {
	if !s.Enabled() {
		log.WithField("path", sp.String()).Debug("no history configured, skipping history cleanup")
		return nil
	}

	dataPath := s.tr.EntityPath(s.dataRoot, sp)
	if fsutil.IsDirectory(s.fs, dataPath) {
		metaPath := s.mirror(dataPath)
		var errs []error
		if err := s.discard(dataPath); err != nil {
			errs = append(errs, err)
		}
		if fsutil.Exists(s.fs, metaPath) {
			if err := s.discard(metaPath); err != nil {
				errs = append(errs, err)
			}
		}
		fsutil.DeleteEmptyAncestorsQuietly(s.fs, dataPath, s.dataRoot)
		fsutil.DeleteEmptyAncestorsQuietly(s.fs, metaPath, s.metadataRoot)
		return stderrors.Join(errs...)
	}

	parent, base := filepath.Dir(dataPath), filepath.Base(dataPath)
	entries, err := afero.ReadDir(s.fs, parent)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return serr.Generic(err, "cannot scan history of %s", sp)
	}

	var errs []error
	for _, e := range entries {
		if isVersionOf(e.Name(), base) {
			if err := s.trashVersion(filepath.Join(parent, e.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}

func (s *Store) trashVersion(dataPath string) error {
	metaPath := s.metadataPath(dataPath)
	if err := s.discard(dataPath); err != nil {
		return err
	}
	if fsutil.Exists(s.fs, metaPath) {
		if err := s.discard(metaPath); err != nil {
			return err
		}
	}
	fsutil.DeleteEmptyAncestorsQuietly(s.fs, dataPath, s.dataRoot)
	fsutil.DeleteEmptyAncestorsQuietly(s.fs, metaPath, s.metadataRoot)
	return nil
}

// discard trashes p, or removes it for good when no trash is configured.
func (s *Store) discard(p string) error {
	outcome, err := s.trash.Trash(p)
	if err != nil {
		return err
	}
	if outcome == trash.Skipped {
		if err := s.fs.RemoveAll(p); err != nil {
			return serr.Generic(err, "cannot delete %s", p)
		}
	}
	return nil
}

// Relocate moves the history of from, and of everything below it, to to.
func (s *Store) Relocate(from, to domain.StoragePath) error {
	if !s.Enabled() {
		return nil
	}

	src := s.tr.EntityPath(s.dataRoot, from)
	dst, err := s.tr.CheckedEntityPath(s.dataRoot, to)
	if err != nil {
		return err
	}

	if fsutil.IsDirectory(s.fs, src) {
		if err := fsutil.Move(s.fs, src, dst, false); err != nil {
			return err
		}
		if fsutil.Exists(s.fs, s.mirror(src)) {
			if err := fsutil.Move(s.fs, s.mirror(src), s.mirror(dst), false); err != nil {
				return err
			}
		}
		fsutil.DeleteEmptyAncestorsQuietly(s.fs, src, s.dataRoot)
		fsutil.DeleteEmptyAncestorsQuietly(s.fs, s.mirror(src), s.metadataRoot)
		return nil
	}

	parent, base := filepath.Dir(src), filepath.Base(src)
	entries, err := afero.ReadDir(s.fs, parent)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return serr.Generic(err, "cannot scan history of %s", from)
	}

	for _, e := range entries {
		if !isVersionOf(e.Name(), base) {
			continue
		}
		id := e.Name()[len(base)+len(translate.VersionSeparator):]
		oldData := filepath.Join(parent, e.Name())
		newData := dst + translate.VersionSeparator + id
		if err := fsutil.Move(s.fs, oldData, newData, false); err != nil {
			return err
		}
		if oldMeta := s.metadataPath(oldData); fsutil.Exists(s.fs, oldMeta) {
			if err := fsutil.Move(s.fs, oldMeta, s.metadataPath(newData), false); err != nil {
				return err
			}
		}
	}
	fsutil.DeleteEmptyAncestorsQuietly(s.fs, src, s.dataRoot)
	fsutil.DeleteEmptyAncestorsQuietly(s.fs, s.metadataPath(src), s.metadataRoot)
	log.WithFields(log.Fields{"from": from.String(), "to": to.String()}).Debug("relocated binary history")
	return nil
}

// convert reads the version stored at dataPath, falling back to defaults
// derived from the file when the sidecar is missing.
func (s *Store) convert(dataPath string) (*domain.BinaryVersion, error) {
	fi, err := s.fs.Stat(dataPath)
	if err != nil {
		return nil, fsutil.StatError(err, dataPath)
	}

	name := filepath.Base(dataPath)
	i := strings.LastIndex(name, translate.VersionSeparator)
	if i <= 0 || i == len(name)-1 {
		return nil, serr.NotValid("bad name for versioned file: %s", dataPath)
	}
	id := name[i+1:]

	sp, err := s.tr.StoragePath(s.dataRoot, filepath.Join(filepath.Dir(dataPath), name[:i]))
	if err != nil {
		return nil, err
	}

	v := &domain.BinaryVersion{}
	data, err := afero.ReadFile(s.fs, s.metadataPath(dataPath))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, v); err != nil {
			return nil, serr.Generic(err, "corrupted version metadata for %s", dataPath)
		}
		if v.ID == "" {
			v.ID = id
		}
	case stderrors.Is(err, fs.ErrNotExist):
		v.ID = id
		v.CreatedDate = fi.ModTime()
		v.Properties = map[string]string{}
	default:
		return nil, serr.Generic(err, "cannot read version metadata for %s", dataPath)
	}

	v.Binary = &domain.Binary{
		Path:        sp,
		Content:     domain.FilePayload{Fs: s.fs, Path: dataPath},
		SizeInBytes: fi.Size(),
	}
	return v, nil
}

func (s *Store) writeMetadata(p string, v domain.BinaryVersion) error {
	data, err := json.Marshal(v)
	if err != nil {
		return serr.Generic(err, "cannot encode version metadata")
	}
	_, err = fsutil.WriteFile(s.fs, p, bytes.NewReader(data))
	return err
}

func (s *Store) metadataPath(dataPath string) string {
	return s.mirror(dataPath) + translate.MetadataSuffix
}

// mirror maps a path of the data subtree onto the metadata subtree.
func (s *Store) mirror(dataPath string) string {
	rel, err := filepath.Rel(s.dataRoot, dataPath)
	if err != nil {
		return filepath.Join(s.metadataRoot, filepath.Base(dataPath))
	}
	return filepath.Join(s.metadataRoot, rel)
}

// isVersionOf reports whether name is base<SEP>id with a non-empty id that has
// no separator of its own.
func isVersionOf(name, base string) bool {
	i := strings.LastIndex(name, translate.VersionSeparator)
	return i > 0 && i < len(name)-1 && name[:i] == base
}
