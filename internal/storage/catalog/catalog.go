// Package catalog walks the physical tree and turns what it finds into
// resources. Every listing is lazy and owns an open handle until closed.
package catalog

import (
	"bytes"
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/ETERNA-earkiv/ETERNA/internal/domain"
	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
	"github.com/ETERNA-earkiv/ETERNA/internal/iterable"
	"github.com/ETERNA-earkiv/ETERNA/internal/scatter"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/fsutil"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/translate"
)

const readBatch = 256

type Resources = iterable.CloseableIterable[domain.Resource]

// Catalog lists resources below a storage root.
type Catalog struct {
	fs           afero.Fs
	tr           *translate.Translator
	manifestName string
	resolver     domain.ReferenceResolver
}

func New(fsys afero.Fs, tr *translate.Translator, manifestName string, resolver domain.ReferenceResolver) *Catalog {
	if manifestName == "" {
		manifestName = fsutil.DefaultManifestName
	}
	return &Catalog{fs: fsys, tr: tr, manifestName: manifestName, resolver: resolver}
}

// ConvertPathToResource builds the resource found at the physical path p.
func (c *Catalog) ConvertPathToResource(base, p string) (domain.Resource, error) {
	fi, err := c.fs.Stat(p)
	if err != nil {
		return nil, fsutil.StatError(err, p)
	}

	sp, err := c.tr.StoragePath(base, p)
	if err != nil {
		return nil, err
	}

	if fi.IsDir() {
		return &domain.Directory{Path: sp}, nil
	}

	var content domain.ContentPayload = domain.FilePayload{Fs: c.fs, Path: p}
	if fsutil.IsManifest(p, c.manifestName) {
		files, err := fsutil.ReadManifest(c.fs, p)
		if err != nil {
			return nil, err
		}
		content = domain.ManifestPayload{Files: files}
	}

	return &domain.Binary{
		Path:        sp,
		Content:     content,
		SizeInBytes: fi.Size(),
	}, nil
}

// ConvertReference builds the binary a manifest record stands for.
func (c *Catalog) ConvertReference(sp domain.StoragePath, sf domain.ShallowFile) *domain.Binary {
	var digest map[string]string
	if sf.Checksum != "" {
		digest = map[string]string{sf.ChecksumAlgorithm: sf.Checksum}
	}
	return &domain.Binary{
		Path:          sp,
		Content:       domain.ReferencePayload{File: sf, Resolver: c.resolver},
		SizeInBytes:   sf.Size,
		IsReference:   true,
		ContentDigest: digest,
	}
}

// ConvertPathToContainer builds the container at p, which must be a directory.
func (c *Catalog) ConvertPathToContainer(base, p string) (*domain.Container, error) {
	if !fsutil.IsDirectory(c.fs, p) {
		return nil, serr.Generic(nil, "%s is not a container", p)
	}
	sp, err := c.tr.StoragePath(base, p)
	if err != nil {
		return nil, err
	}
	return &domain.Container{Path: sp}, nil
}

func (c *Catalog) convertQuietly(base, p string) domain.Resource {
	r, err := c.ConvertPathToResource(base, p)
	if err != nil {
		log.WithField("path", p).Errorf("error while listing %s: %v", base, err)
		return nil
	}
	return r
}

// ListPath lists the direct children of dir. An entry that cannot be
// converted is logged and yielded as nil.
func (c *Catalog) ListPath(base, dir string) (Resources, error) {
	f, err := c.openDir(dir)
	if err != nil {
		return nil, err
	}

	seq := func(yield func(domain.Resource) bool) {
		readNames(f, dir, func(name string) bool {
			return yield(c.convertQuietly(base, filepath.Join(dir, name)))
		})
	}
	return iterable.New(seq, f.Close), nil
}

// ListContainers lists the containers directly under base.
func (c *Catalog) ListContainers(base string) (iterable.CloseableIterable[*domain.Container], error) {
	f, err := c.openDir(base)
	if err != nil {
		return nil, err
	}

	seq := func(yield func(*domain.Container) bool) {
		readNames(f, base, func(name string) bool {
			p := filepath.Join(base, name)
			ct, err := c.ConvertPathToContainer(base, p)
			if err != nil {
				log.WithField("path", p).Errorf("error while listing containers: %v", err)
			}
			return yield(ct)
		})
	}
	return iterable.New(seq, f.Close), nil
}

// ListRecursive walks everything below dir, following links, in depth first
// order. dir itself is not yielded.
func (c *Catalog) ListRecursive(base, dir string) (Resources, error) {
	root, err := c.fs.Stat(dir)
	if err != nil {
		return nil, fsutil.StatError(err, dir)
	}
	if !root.IsDir() {
		return nil, serr.Generic(nil, "%s is not a directory", dir)
	}

	w := &walker{fs: c.fs, maxDepth: -1}
	seq := func(yield func(domain.Resource) bool) {
		w.walk(dir, 1, []os.FileInfo{root}, func(p string, _ os.FileInfo, _ int) bool {
			return yield(c.convertQuietly(base, p))
		})
	}
	return iterable.New(seq, w.Close), nil
}

// ListManifest yields one reference binary per line of the manifest at p,
// named after the record and sized as the record declares. The referenced
// content is not checked.
func (c *Catalog) ListManifest(base, p string) (Resources, error) {
	f, err := c.fs.Open(p)
	if err != nil {
		return nil, fsutil.StatError(err, p)
	}
	parent := filepath.Dir(p)

	seq := func(yield func(domain.Resource) bool) {
		sc := fsutil.NewLineScanner(f)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			if !yield(c.convertManifestLine(base, parent, line)) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			log.WithField("path", p).Errorf("error while reading manifest: %v", err)
		}
	}
	return iterable.New(seq, f.Close), nil
}

func (c *Catalog) convertManifestLine(base, parent string, line []byte) domain.Resource {
	sf, err := fsutil.DecodeShallowFile(line)
	if err != nil {
		log.WithField("path", parent).Errorf("error while listing manifest: %v", err)
		return nil
	}
	if err := domain.ValidateName(sf.Name); err != nil {
		log.WithField("path", parent).Errorf("bad manifest entry name: %v", err)
		return nil
	}
	sp, err := c.tr.StoragePath(base, filepath.Join(parent, fsutil.EncodePathPartial(sf.Name)))
	if err != nil {
		log.WithField("path", parent).Errorf("error while listing manifest: %v", err)
		return nil
	}
	return c.ConvertReference(sp, sf)
}

// ListScatteredContainer lists the scattered units of a container. Only
// entries exactly FolderDepth()+1 levels down whose path is the one s computes
// for their own name, whose name is valid and whose kind matches the
// configured unit are yielded.
func (c *Catalog) ListScatteredContainer(base, container string, s scatter.Strategy) (Resources, error) {
	root := filepath.Join(base, fsutil.EncodePathPartial(container))
	rootInfo, err := c.fs.Stat(root)
	if err != nil {
		return nil, fsutil.StatError(err, root)
	}

	target := s.FolderDepth() + 1
	w := &walker{fs: c.fs, maxDepth: target}
	seq := func(yield func(domain.Resource) bool) {
		w.walk(root, 1, []os.FileInfo{rootInfo}, func(p string, fi os.FileInfo, depth int) bool {
			if depth != target || fi.IsDir() != s.IsDirectoryUnit() {
				return true
			}
			rel, err := filepath.Rel(root, p)
			if err != nil || !translate.MatchesScatterPath(s, fsutil.SplitPath(rel)) {
				return true
			}
			return yield(c.convertQuietly(base, p))
		})
	}
	return iterable.New(seq, w.Close), nil
}

// ListScatteredRecursive lists every unit of a scattered container, each
// directory unit followed by everything below it. The fan-out directories
// themselves are never yielded.
func (c *Catalog) ListScatteredRecursive(base, container string, s scatter.Strategy) (Resources, error) {
	units, err := c.ListScatteredContainer(base, container, s)
	if err != nil {
		return nil, err
	}

	var inner Resources
	seq := func(yield func(domain.Resource) bool) {
		for u := range units.All() {
			if !yield(u) {
				return
			}
			if u == nil || !u.IsDirectory() {
				continue
			}
			p := c.tr.EntityPath(base, u.StoragePath())
			it, err := c.ListRecursive(base, p)
			if err != nil {
				log.WithField("path", p).Errorf("error while listing unit: %v", err)
				continue
			}
			inner = it
			for r := range it.All() {
				if !yield(r) {
					return
				}
			}
			inner = nil
		}
	}
	closeFn := func() error {
		var errs []error
		if inner != nil {
			errs = append(errs, inner.Close())
		}
		errs = append(errs, units.Close())
		return stderrors.Join(errs...)
	}
	return iterable.New(seq, closeFn), nil
}

// ListResourcesUnderContainer dispatches on whether container is scattered.
func (c *Catalog) ListResourcesUnderContainer(base, container string) (Resources, error) {
	if s, ok := c.tr.Strategy(container); ok {
		return c.ListScatteredContainer(base, container, s)
	}
	return c.ListPath(base, filepath.Join(base, fsutil.EncodePathPartial(container)))
}

func (c *Catalog) openDir(dir string) (afero.File, error) {
	f, err := c.fs.Open(dir)
	if err != nil {
		return nil, fsutil.StatError(err, dir)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, serr.Generic(err, "cannot stat %s", dir)
	}
	if !fi.IsDir() {
		f.Close()
		return nil, serr.Generic(nil, "%s is not a directory", dir)
	}
	return f, nil
}

// readNames feeds directory entries to fn in batches until fn returns false.
func readNames(f afero.File, dir string, fn func(string) bool) {
	for {
		names, err := f.Readdirnames(readBatch)
		for _, name := range names {
			if !fn(name) {
				return
			}
		}
		if err != nil {
			if !stderrors.Is(err, io.EOF) {
				log.WithField("path", dir).Errorf("error while reading directory: %v", err)
			}
			return
		}
		if len(names) == 0 {
			return
		}
	}
}

// walker is a depth first, link following tree walk that holds one
// directory handle per level being read.
type walker struct {
	fs       afero.Fs
	maxDepth int
	open     []afero.File
	closed   bool
}

func (w *walker) walk(dir string, depth int, ancestors []os.FileInfo, visit func(string, os.FileInfo, int) bool) bool {
	if w.closed || (w.maxDepth >= 0 && depth > w.maxDepth) {
		return !w.closed
	}

	f, err := w.fs.Open(dir)
	if err != nil {
		log.WithField("path", dir).Errorf("error while walking: %v", err)
		return true
	}
	w.open = append(w.open, f)
	defer w.pop(f)

	keepGoing := true
	readNames(f, dir, func(name string) bool {
		p := filepath.Join(dir, name)
		fi, err := w.fs.Stat(p)
		if err != nil {
			if !stderrors.Is(err, fs.ErrNotExist) {
				log.WithField("path", p).Errorf("error while walking: %v", err)
			}
			return true
		}
		if !visit(p, fi, depth) {
			keepGoing = false
			return false
		}
		if fi.IsDir() && !isLoop(fi, ancestors) {
			if !w.walk(p, depth+1, append(ancestors[:len(ancestors):len(ancestors)], fi), visit) {
				keepGoing = false
				return false
			}
		}
		return !w.closed
	})
	return keepGoing && !w.closed
}

func (w *walker) pop(f afero.File) {
	if n := len(w.open); n > 0 && w.open[n-1] == f {
		w.open = w.open[:n-1]
	}
	f.Close()
}

func (w *walker) Close() error {
	w.closed = true
	var errs []error
	for i := len(w.open) - 1; i >= 0; i-- {
		if err := w.open[i].Close(); err != nil && !stderrors.Is(err, fs.ErrClosed) {
			errs = append(errs, err)
		}
	}
	w.open = nil
	return stderrors.Join(errs...)
}

func isLoop(fi os.FileInfo, ancestors []os.FileInfo) bool {
	for _, a := range ancestors {
		if os.SameFile(fi, a) {
			return true
		}
	}
	return false
}
