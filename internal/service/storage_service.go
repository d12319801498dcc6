// Package service provides the entity level storage operations on top of the
// scattered layout.
//
// ScatteredStorageService composes the pieces of package storage:
//   - translate maps storage paths to disk, scattering registered containers
//   - catalog lists what is on disk
//   - trash moves deleted entries aside
//   - history keeps binary versions in a parallel root
//
// Containers that are not registered behave exactly like a plain filesystem
// store rooted at the base path.
package service

import (
	"context"
	stderrors "errors"
	"io/fs"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/ETERNA-earkiv/ETERNA/internal/domain"
	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
	"github.com/ETERNA-earkiv/ETERNA/internal/iterable"
	"github.com/ETERNA-earkiv/ETERNA/internal/scatter"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/catalog"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/fsutil"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/history"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/translate"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/trash"
)

// DefaultTrashDir is the trash directory name under the data root.
const DefaultTrashDir = "trash"

type Resources = catalog.Resources

// ScatteredStorageService stores containers, directories and binaries below
// basePath.
type ScatteredStorageService struct {
	fs           afero.Fs
	basePath     string
	tr           *translate.Translator
	catalog      *catalog.Catalog
	trash        *trash.Coordinator
	history      *history.Store
	manifestName string
}

type options struct {
	fs           afero.Fs
	registry     *scatter.Registry
	trashRoot    string
	noTrash      bool
	historyRoot  string
	noHistory    bool
	resolver     domain.ReferenceResolver
	manifestName string
}

type Option func(*options)

func WithFs(fsys afero.Fs) Option {
	return func(o *options) { o.fs = fsys }
}

// WithRegistry sets the scattered containers.
func WithRegistry(reg *scatter.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithTrashDir overrides the trash root. A relative path is taken from the
// data root, the parent of the base path.
func WithTrashDir(dir string) Option {
	return func(o *options) { o.trashRoot = dir }
}

// WithoutTrash makes deletions permanent.
func WithoutTrash() Option {
	return func(o *options) { o.noTrash = true }
}

// WithHistoryRoot overrides the default <base>-history root.
func WithHistoryRoot(dir string) Option {
	return func(o *options) { o.historyRoot = dir }
}

func WithoutHistory() Option {
	return func(o *options) { o.noHistory = true }
}

// WithResolver sets how reference binaries open their external content.
func WithResolver(r domain.ReferenceResolver) Option {
	return func(o *options) { o.resolver = r }
}

func WithManifestName(name string) Option {
	return func(o *options) { o.manifestName = name }
}

// New creates the service and the roots it needs.
func New(basePath string, opts ...Option) (*ScatteredStorageService, error) {
	o := &options{fs: afero.NewOsFs(), registry: scatter.EmptyRegistry()}
	for _, opt := range opts {
		opt(o)
	}
	if o.manifestName == "" {
		o.manifestName = fsutil.DefaultManifestName
	}
	if err := domain.ValidateName(o.manifestName); err != nil {
		return nil, err
	}

	basePath = filepath.Clean(basePath)
	dataRoot := filepath.Dir(basePath)

	trashRoot := ""
	if !o.noTrash {
		trashRoot = o.trashRoot
		if trashRoot == "" {
			trashRoot = DefaultTrashDir
		}
		if !filepath.IsAbs(trashRoot) {
			trashRoot = filepath.Join(dataRoot, trashRoot)
		}
	}

	historyRoot := ""
	if !o.noHistory {
		historyRoot = o.historyRoot
		if historyRoot == "" {
			historyRoot = history.RootFor(basePath)
		}
	}

	for _, dir := range []string{basePath, trashRoot, historyRoot} {
		if dir == "" {
			continue
		}
		if err := o.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, serr.Generic(err, "cannot create %s", dir)
		}
	}

	tr := translate.New(o.registry)
	tc := trash.New(o.fs, dataRoot, trashRoot)
	// history may live outside the data root; its entries are trashed
	// relative to the history root's own parent
	htc := tc
	if historyRoot != "" {
		htc = trash.New(o.fs, filepath.Dir(filepath.Clean(historyRoot)), trashRoot)
	}
	s := &ScatteredStorageService{
		fs:           o.fs,
		basePath:     basePath,
		tr:           tr,
		catalog:      catalog.New(o.fs, tr, o.manifestName, o.resolver),
		trash:        tc,
		history:      history.New(o.fs, tr, htc, basePath, historyRoot),
		manifestName: o.manifestName,
	}

	log.WithFields(log.Fields{
		"base":       basePath,
		"trash":      trashRoot,
		"history":    historyRoot,
		"containers": o.registry.Containers(),
	}).Debug("scattered storage initialised")
	return s, nil
}

func (s *ScatteredStorageService) BasePath() string { return s.basePath }
func (s *ScatteredStorageService) Fs() afero.Fs      { return s.fs }

// Resolve returns the physical path of sp. Callers get direct access to the
// file and must not write to it.
func (s *ScatteredStorageService) Resolve(sp domain.StoragePath) string {
	return s.tr.EntityPath(s.basePath, sp)
}

// resolveForWrite is Resolve for paths about to be created. It fails when sp
// names an id its container's scatter rule cannot place.
func (s *ScatteredStorageService) resolveForWrite(sp domain.StoragePath) (string, error) {
	return s.tr.CheckedEntityPath(s.basePath, sp)
}

// Reverse maps a physical path under the base path back to its storage path.
func (s *ScatteredStorageService) Reverse(physical string) (domain.StoragePath, error) {
	return s.tr.StoragePath(s.basePath, physical)
}

func (s *ScatteredStorageService) Exists(sp domain.StoragePath) bool {
	return fsutil.Exists(s.fs, s.Resolve(sp))
}

// Containers

func (s *ScatteredStorageService) ListContainers() (iterable.CloseableIterable[*domain.Container], error) {
	return s.catalog.ListContainers(s.basePath)
}

func (s *ScatteredStorageService) CreateContainer(sp domain.StoragePath) (*domain.Container, error) {
	if !sp.IsFromAContainer() {
		return nil, serr.NotValid("storage path is not from a container: %s", sp)
	}
	if err := fsutil.CreateDirectory(s.fs, s.Resolve(sp)); err != nil {
		return nil, err
	}
	return &domain.Container{Path: sp}, nil
}

func (s *ScatteredStorageService) GetContainer(sp domain.StoragePath) (*domain.Container, error) {
	if !sp.IsFromAContainer() {
		return nil, serr.NotValid("storage path is not from a container: %s", sp)
	}
	p := s.Resolve(sp)
	if !fsutil.IsDirectory(s.fs, p) {
		return nil, serr.NotFound(fs.ErrNotExist, "container not found: %s", sp)
	}
	return &domain.Container{Path: sp}, nil
}

// DeleteContainer trashes the container and all its history.
func (s *ScatteredStorageService) DeleteContainer(sp domain.StoragePath) error {
	if !sp.IsFromAContainer() {
		return serr.NotValid("storage path is not from a container: %s", sp)
	}
	return s.DeleteResource(sp)
}

// ListResourcesUnderContainer lists the top level entries of a container, or
// everything in it when recursive. Scattered containers yield their units,
// never the fan-out directories.
func (s *ScatteredStorageService) ListResourcesUnderContainer(sp domain.StoragePath, recursive bool) (Resources, error) {
	if !sp.IsFromAContainer() {
		return nil, serr.NotValid("storage path is not from a container: %s", sp)
	}
	container := sp.ContainerName()
	if st, ok := s.tr.Strategy(container); ok {
		if recursive {
			return s.catalog.ListScatteredRecursive(s.basePath, container, st)
		}
		return s.catalog.ListScatteredContainer(s.basePath, container, st)
	}
	if recursive {
		return s.catalog.ListRecursive(s.basePath, s.Resolve(sp))
	}
	return s.catalog.ListPath(s.basePath, s.Resolve(sp))
}

func (s *ScatteredStorageService) CountResourcesUnderContainer(sp domain.StoragePath, recursive bool) (int64, error) {
	if !sp.IsFromAContainer() {
		return 0, serr.NotValid("storage path is not from a container: %s", sp)
	}
	if _, ok := s.tr.Strategy(sp.ContainerName()); ok {
		it, err := s.ListResourcesUnderContainer(sp, recursive)
		if err != nil {
			return 0, err
		}
		return count(it)
	}
	return s.countPath(s.Resolve(sp), recursive)
}

// Directories

// CreateDirectory creates sp and any missing parents.
func (s *ScatteredStorageService) CreateDirectory(sp domain.StoragePath) (*domain.Directory, error) {
	if sp.IsFromAContainer() {
		return nil, serr.NotValid("invalid storage path for a directory: %s", sp)
	}
	p, err := s.resolveForWrite(sp)
	if err != nil {
		return nil, err
	}
	if err := fsutil.CreateDirectory(s.fs, p); err != nil {
		return nil, err
	}
	return &domain.Directory{Path: sp}, nil
}

// CreateRandomDirectory creates a directory with a fresh id under parent. In
// a scattered container the directory lands at its scattered location.
func (s *ScatteredStorageService) CreateRandomDirectory(parent domain.StoragePath) (*domain.Directory, error) {
	child, err := parent.Child(uuid.NewString())
	if err != nil {
		return nil, err
	}
	p, err := s.resolveForWrite(child)
	if err != nil {
		return nil, err
	}
	if err := fsutil.CreateDirectory(s.fs, p); err != nil {
		return nil, err
	}
	sp, err := s.Reverse(p)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"path": sp.String(), "physical": p}).Debug("created random directory")
	return &domain.Directory{Path: sp}, nil
}

func (s *ScatteredStorageService) GetDirectory(sp domain.StoragePath) (*domain.Directory, error) {
	if sp.IsFromAContainer() {
		return nil, serr.NotValid("invalid storage path for a directory: %s", sp)
	}
	r, err := s.catalog.ConvertPathToResource(s.basePath, s.Resolve(sp))
	if err != nil {
		return nil, err
	}
	d, ok := r.(*domain.Directory)
	if !ok {
		return nil, serr.NotValid("looking for a directory but found something else: %s", sp)
	}
	return d, nil
}

func (s *ScatteredStorageService) HasDirectory(sp domain.StoragePath) bool {
	_, err := s.GetDirectory(sp)
	return err == nil
}

func (s *ScatteredStorageService) ListResourcesUnderDirectory(sp domain.StoragePath, recursive bool) (Resources, error) {
	p := s.Resolve(sp)
	if recursive {
		return s.catalog.ListRecursive(s.basePath, p)
	}
	return s.catalog.ListPath(s.basePath, p)
}

// ListResourcesUnderFile lists the reference binaries recorded in the
// manifest at sp.
func (s *ScatteredStorageService) ListResourcesUnderFile(sp domain.StoragePath) (Resources, error) {
	p := s.Resolve(sp)
	if fsutil.IsDirectory(s.fs, p) {
		return nil, serr.NotValid("%s is a directory, not a manifest", sp)
	}
	return s.catalog.ListManifest(s.basePath, p)
}

func (s *ScatteredStorageService) CountResourcesUnderDirectory(sp domain.StoragePath, recursive bool) (int64, error) {
	return s.countPath(s.Resolve(sp), recursive)
}

func (s *ScatteredStorageService) countPath(p string, recursive bool) (int64, error) {
	if recursive {
		return fsutil.RecursivelyCountPath(s.fs, p)
	}
	return fsutil.CountPath(s.fs, p)
}

// Binaries

// CreateBinary writes a new binary at sp. With asReference, sp names a
// manifest and payload must be a ManifestPayload whose first record is
// appended to it; a record with the same name is a conflict.
func (s *ScatteredStorageService) CreateBinary(ctx context.Context, sp domain.StoragePath, payload domain.ContentPayload, asReference bool) (*domain.Binary, error) {
	if sp.IsFromAContainer() {
		return nil, serr.NotValid("invalid storage path for a binary: %s", sp)
	}
	p, err := s.resolveForWrite(sp)
	if err != nil {
		return nil, err
	}

	if asReference {
		sf, err := firstShallowFile(payload)
		if err != nil {
			return nil, err
		}
		var files []domain.ShallowFile
		if fsutil.Exists(s.fs, p) {
			if !fsutil.IsFile(s.fs, p) {
				return nil, serr.NotValid("looking for a manifest but found something else: %s", sp)
			}
			if files, err = fsutil.ReadManifest(s.fs, p); err != nil {
				return nil, err
			}
			for _, existing := range files {
				if existing.Name == sf.Name {
					return nil, serr.AlreadyExists(fs.ErrExist, "reference %s already exists in %s", sf.Name, sp)
				}
			}
		}
		files = append(files, sf)
		if err := fsutil.WriteManifest(s.fs, p, files); err != nil {
			return nil, err
		}
		return s.manifestBinary(sp, p, files)
	}

	rc, err := payload.Open(ctx)
	if err != nil {
		return nil, serr.Generic(err, "cannot open payload for %s", sp)
	}
	defer rc.Close()

	n, err := fsutil.CreateFile(s.fs, p, rc)
	if err != nil {
		return nil, err
	}
	return &domain.Binary{
		Path:        sp,
		Content:     domain.FilePayload{Fs: s.fs, Path: p},
		SizeInBytes: n,
	}, nil
}

// CreateRandomBinary writes a new binary with a fresh id under parent.
func (s *ScatteredStorageService) CreateRandomBinary(ctx context.Context, parent domain.StoragePath, payload domain.ContentPayload, asReference bool) (*domain.Binary, error) {
	if asReference {
		return nil, serr.ErrNotImplemented
	}
	child, err := parent.Child(uuid.NewString())
	if err != nil {
		return nil, err
	}
	b, err := s.CreateBinary(ctx, child, payload, false)
	if err != nil {
		return nil, err
	}
	if b.Path, err = s.Reverse(s.Resolve(child)); err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBinaryContent replaces the content of sp. With asReference the record
// named by the first entry of a ManifestPayload replaces the one of the same
// name in the manifest at sp, or is appended, and the returned binary is that
// reference.
func (s *ScatteredStorageService) UpdateBinaryContent(ctx context.Context, sp domain.StoragePath, payload domain.ContentPayload, asReference, createIfNotExists bool) (*domain.Binary, error) {
	if sp.IsFromAContainer() {
		return nil, serr.NotValid("invalid storage path for a binary: %s", sp)
	}
	p, err := s.resolveForWrite(sp)
	if err != nil {
		return nil, err
	}
	exists := fsutil.Exists(s.fs, p)
	if !exists && !createIfNotExists {
		return nil, serr.NotFound(fs.ErrNotExist, "binary does not exist: %s", sp)
	}
	if exists && !fsutil.IsFile(s.fs, p) {
		return nil, serr.NotValid("looking for a binary but found something else: %s", sp)
	}

	if asReference {
		sf, err := firstShallowFile(payload)
		if err != nil {
			return nil, err
		}
		files, err := fsutil.ReadManifest(s.fs, p)
		if err != nil {
			return nil, err
		}
		replaced := false
		for i := range files {
			if files[i].Name == sf.Name {
				files[i] = sf
				replaced = true
			}
		}
		if !replaced {
			files = append(files, sf)
		}
		if err := fsutil.WriteManifest(s.fs, p, files); err != nil {
			return nil, err
		}
		ref, err := s.Reverse(filepath.Join(filepath.Dir(p), fsutil.EncodePathPartial(sf.Name)))
		if err != nil {
			return nil, err
		}
		return s.catalog.ConvertReference(ref, sf), nil
	}

	rc, err := payload.Open(ctx)
	if err != nil {
		return nil, serr.Generic(err, "cannot open payload for %s", sp)
	}
	defer rc.Close()
	if _, err := fsutil.WriteFile(s.fs, p, rc); err != nil {
		return nil, err
	}
	return s.GetBinary(sp)
}

// GetBinary returns the binary at sp. When nothing exists at sp the manifest
// of its parent is searched for a reference with the same name.
func (s *ScatteredStorageService) GetBinary(sp domain.StoragePath) (*domain.Binary, error) {
	p := s.Resolve(sp)
	if fsutil.Exists(s.fs, p) {
		r, err := s.catalog.ConvertPathToResource(s.basePath, p)
		if err != nil {
			return nil, err
		}
		b, ok := r.(*domain.Binary)
		if !ok {
			return nil, serr.NotValid("looking for a binary but found something else: %s", sp)
		}
		return b, nil
	}

	sf, found, err := fsutil.FindInManifest(s.fs, p, s.manifestName)
	if err != nil {
		return nil, err
	}
	if found {
		return s.catalog.ConvertReference(sp, sf), nil
	}
	return nil, serr.NotFound(fs.ErrNotExist, "cannot find file or directory at %s", p)
}

func (s *ScatteredStorageService) HasBinary(sp domain.StoragePath) bool {
	_, err := s.GetBinary(sp)
	return err == nil
}

// ShallowFiles returns the storage paths of the manifests under a container.
func (s *ScatteredStorageService) ShallowFiles(sp domain.StoragePath) ([]domain.StoragePath, error) {
	it, err := s.ListResourcesUnderContainer(sp, true)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []domain.StoragePath
	for r := range it.All() {
		b, ok := r.(*domain.Binary)
		if !ok {
			continue
		}
		if _, ok := b.Content.(domain.ManifestPayload); ok {
			out = append(out, b.Path)
		}
	}
	return out, nil
}

// GetEntity tells what sp points at, falling back to the parent manifest.
func (s *ScatteredStorageService) GetEntity(sp domain.StoragePath) (domain.EntityKind, error) {
	p := s.Resolve(sp)
	fi, err := s.fs.Stat(p)
	if err == nil {
		switch {
		case fi.IsDir() && sp.IsFromAContainer():
			return domain.KindContainer, nil
		case fi.IsDir():
			return domain.KindDirectory, nil
		default:
			return domain.KindBinary, nil
		}
	}
	if !stderrors.Is(err, fs.ErrNotExist) {
		return domain.KindUnknown, fsutil.StatError(err, p)
	}

	_, found, err := fsutil.FindInManifest(s.fs, p, s.manifestName)
	if err != nil {
		return domain.KindUnknown, err
	}
	if found {
		return domain.KindBinary, nil
	}
	return domain.KindUnknown, serr.NotFound(fs.ErrNotExist, "entity was not found: %s", sp)
}

// Deletion

// DeleteResource trashes whatever is at sp and then its version history. A
// binary that only exists as a manifest record has that record removed.
// Without a trash root the entry is removed permanently.
func (s *ScatteredStorageService) DeleteResource(sp domain.StoragePath) error {
	p := s.Resolve(sp)
	if !fsutil.Exists(s.fs, p) {
		removed, err := fsutil.RemoveFromManifest(s.fs, p, s.manifestName)
		if err != nil {
			return err
		}
		if !removed {
			return serr.NotFound(fs.ErrNotExist, "cannot find file or directory at %s", p)
		}
		log.WithField("path", sp.String()).Debug("removed reference from manifest")
		return nil
	}

	outcome, err := s.trash.Trash(p)
	if err != nil {
		return err
	}
	if outcome == trash.Skipped {
		if err := s.fs.RemoveAll(p); err != nil {
			return serr.Generic(err, "cannot delete %s", p)
		}
	}
	s.pruneScatter(sp, p)

	if err := s.history.DeleteAllUnder(sp); err != nil {
		log.WithField("path", sp.String()).Warnf("could not delete history: %v", err)
	}
	return nil
}

// pruneScatter removes fan-out directories left empty by deleting a unit.
func (s *ScatteredStorageService) pruneScatter(sp domain.StoragePath, p string) {
	if sp.Len() != 2 {
		return
	}
	if _, ok := s.tr.Strategy(sp.ContainerName()); ok {
		fsutil.DeleteEmptyAncestorsQuietly(s.fs, p, filepath.Join(s.basePath, fsutil.EncodePathPartial(sp.ContainerName())))
	}
}

// Export copies the physical content of sp, or of resource inside it, to
// toPath on the same filesystem.
func (s *ScatteredStorageService) Export(sp domain.StoragePath, resource, toPath string) error {
	src := s.Resolve(sp)
	if resource != "" {
		src = filepath.Join(src, resource)
	}
	if !fsutil.Exists(s.fs, src) {
		return serr.NotFound(fs.ErrNotExist, "nothing to export at %s", src)
	}
	return fsutil.Copy(s.fs, src, toPath, false)
}

// Versions

func (s *ScatteredStorageService) CreateBinaryVersion(sp domain.StoragePath, properties map[string]string) (*domain.BinaryVersion, error) {
	return s.history.Create(sp, properties)
}

func (s *ScatteredStorageService) GetBinaryVersion(sp domain.StoragePath, id string) (*domain.BinaryVersion, error) {
	return s.history.Get(sp, id)
}

func (s *ScatteredStorageService) ListBinaryVersions(sp domain.StoragePath) (history.Versions, error) {
	return s.history.List(sp)
}

func (s *ScatteredStorageService) RevertBinaryVersion(sp domain.StoragePath, id string) error {
	return s.history.Revert(sp, id)
}

func (s *ScatteredStorageService) DeleteBinaryVersion(sp domain.StoragePath, id string) error {
	return s.history.Delete(sp, id)
}

func (s *ScatteredStorageService) manifestBinary(sp domain.StoragePath, p string, files []domain.ShallowFile) (*domain.Binary, error) {
	fi, err := s.fs.Stat(p)
	if err != nil {
		return nil, fsutil.StatError(err, p)
	}
	return &domain.Binary{
		Path:          sp,
		Content:       domain.ManifestPayload{Files: files},
		SizeInBytes:   fi.Size(),
		IsReference:   true,
		ContentDigest: map[string]string{},
	}, nil
}

func firstShallowFile(payload domain.ContentPayload) (domain.ShallowFile, error) {
	m, ok := payload.(domain.ManifestPayload)
	if !ok || len(m.Files) == 0 {
		return domain.ShallowFile{}, serr.NotValid("a reference binary needs a manifest payload with at least one record")
	}
	sf := m.Files[0]
	if err := domain.ValidateName(sf.Name); err != nil {
		return domain.ShallowFile{}, err
	}
	return sf, nil
}

func count(it Resources) (int64, error) {
	defer it.Close()
	var n int64
	for r := range it.All() {
		if r != nil {
			n++
		}
	}
	return n, nil
}
