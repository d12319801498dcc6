package fsutil

import (
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

func Exists(fsys afero.Fs, p string) bool {
	_, err := fsys.Stat(p)
	return err == nil
}

func IsDirectory(fsys afero.Fs, p string) bool {
	fi, err := fsys.Stat(p)
	return err == nil && fi.IsDir()
}

func IsFile(fsys afero.Fs, p string) bool {
	fi, err := fsys.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Move renames from to to, creating parents. Without replace an existing
// target is an AlreadyExists error. Falls back to copy and delete when rename
// is not possible, e.g. across devices.
func Move(fsys afero.Fs, from, to string, replace bool) error {
	if !Exists(fsys, from) {
		return serr.NotFound(fs.ErrNotExist, "cannot move %s", from)
	}
	if err := prepareTarget(fsys, to, replace); err != nil {
		return err
	}

	err := fsys.Rename(from, to)
	if err == nil {
		return nil
	}
	log.WithField("path", from).Debugf("rename failed, copying instead: %v", err)

	if err := copyTree(fsys, from, to); err != nil {
		return serr.Generic(err, "cannot move %s to %s", from, to)
	}
	if err := fsys.RemoveAll(from); err != nil {
		return serr.Generic(err, "cannot remove %s after copying it", from)
	}
	return nil
}

// Copy copies a file or a whole directory tree.
func Copy(fsys afero.Fs, from, to string, replace bool) error {
	if !Exists(fsys, from) {
		return serr.NotFound(fs.ErrNotExist, "cannot copy %s", from)
	}
	if err := prepareTarget(fsys, to, replace); err != nil {
		return err
	}
	if err := copyTree(fsys, from, to); err != nil {
		return serr.Generic(err, "cannot copy %s to %s", from, to)
	}
	return nil
}

// CopyBetween copies a tree from one filesystem into another.
func CopyBetween(src afero.Fs, from string, dst afero.Fs, to string, replace bool) error {
	if !Exists(src, from) {
		return serr.NotFound(fs.ErrNotExist, "cannot copy %s", from)
	}
	if err := prepareTarget(dst, to, replace); err != nil {
		return err
	}
	if err := copyTreeBetween(src, from, dst, to); err != nil {
		return serr.Generic(err, "cannot copy %s to %s", from, to)
	}
	return nil
}

func prepareTarget(fsys afero.Fs, to string, replace bool) error {
	if Exists(fsys, to) {
		if !replace {
			return serr.AlreadyExists(fs.ErrExist, "target %s already exists", to)
		}
		if err := fsys.RemoveAll(to); err != nil {
			return serr.Generic(err, "cannot replace %s", to)
		}
	}
	if err := fsys.MkdirAll(filepath.Dir(to), dirPerm); err != nil {
		return serr.Generic(err, "cannot create parent of %s", to)
	}
	return nil
}

func copyTree(fsys afero.Fs, from, to string) error {
	return copyTreeBetween(fsys, from, fsys, to)
}

func copyTreeBetween(src afero.Fs, from string, dst afero.Fs, to string) error {
	return afero.Walk(src, from, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, p)
		if err != nil {
			return err
		}
		target := filepath.Join(to, rel)
		if info.IsDir() {
			return dst.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		return copyFile(src, p, dst, target, info.Mode().Perm())
	})
}

func copyFile(src afero.Fs, from string, dst afero.Fs, to string, perm os.FileMode) error {
	in, err := src.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := dst.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// DeleteEmptyAncestorsQuietly removes now empty parents of p, stopping at stop
// (exclusive). Failures are only logged.
func DeleteEmptyAncestorsQuietly(fsys afero.Fs, p, stop string) {
	stop = filepath.Clean(stop)
	for dir := filepath.Dir(filepath.Clean(p)); isStrictlyUnder(dir, stop); dir = filepath.Dir(dir) {
		empty, err := afero.IsEmpty(fsys, dir)
		if err != nil {
			if !stderrors.Is(err, fs.ErrNotExist) {
				log.WithField("path", dir).Warnf("could not check directory: %v", err)
			}
			return
		}
		if !empty {
			return
		}
		if err := fsys.Remove(dir); err != nil {
			log.WithField("path", dir).Warnf("could not delete empty directory: %v", err)
			return
		}
	}
}

func isStrictlyUnder(p, root string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:2] == ".." && os.IsPathSeparator(rel[2])
}

// CreateDirectory creates exactly p, failing if it exists.
func CreateDirectory(fsys afero.Fs, p string) error {
	if err := fsys.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return serr.Generic(err, "cannot create parent of %s", p)
	}
	if err := fsys.Mkdir(p, dirPerm); err != nil {
		if stderrors.Is(err, fs.ErrExist) {
			return serr.AlreadyExists(err, "directory %s already exists", p)
		}
		return serr.Generic(err, "cannot create directory %s", p)
	}
	return nil
}

// CreateFile writes r to a new file at p, creating parents. An existing p is
// reported as AlreadyExists and left untouched.
func CreateFile(fsys afero.Fs, p string, r io.Reader) (int64, error) {
	if err := fsys.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return 0, serr.Generic(err, "cannot create parent of %s", p)
	}
	f, err := fsys.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if stderrors.Is(err, fs.ErrExist) {
			return 0, serr.AlreadyExists(err, "file %s already exists", p)
		}
		return 0, serr.Generic(err, "cannot create file %s", p)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, serr.Generic(err, "cannot write %s", p)
	}
	return n, nil
}

// WriteFile writes r to p, creating parents and truncating any existing file.
func WriteFile(fsys afero.Fs, p string, r io.Reader) (int64, error) {
	if err := fsys.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return 0, serr.Generic(err, "cannot create parent of %s", p)
	}
	f, err := fsys.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return 0, serr.Generic(err, "cannot open %s for writing", p)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, serr.Generic(err, "cannot write %s", p)
	}
	return n, nil
}

// CountPath counts the direct children of dir.
func CountPath(fsys afero.Fs, dir string) (int64, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return 0, StatError(err, dir)
	}
	return int64(len(entries)), nil
}

// RecursivelyCountPath counts every entry below dir, dir itself excluded.
func RecursivelyCountPath(fsys afero.Fs, dir string) (int64, error) {
	if !IsDirectory(fsys, dir) {
		return 0, serr.NotFound(fs.ErrNotExist, "cannot count %s", dir)
	}
	var n int64 = -1
	err := afero.Walk(fsys, dir, func(_ string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return 0, serr.Generic(err, "cannot count %s", dir)
	}
	return n, nil
}

// StatError classifies a filesystem error for p.
func StatError(err error, p string) error {
	if stderrors.Is(err, fs.ErrNotExist) {
		return serr.NotFound(err, "cannot find %s", p)
	}
	return serr.Generic(err, "cannot access %s", p)
}
