// Package trash moves deleted entries aside instead of unlinking them.
package trash

import (
	stderrors "errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/fsutil"
)

// Outcome tells how a trash request was carried out.
type Outcome int

const (
	// Skipped means no trash root is configured and nothing was touched.
	Skipped Outcome = iota
	Moved
	// MovedUnique means the plain destination was taken and a unique
	// sub-directory of the trash root was used.
	MovedUnique
)

func (o Outcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case MovedUnique:
		return "moved-unique"
	default:
		return "skipped"
	}
}

// Coordinator mirrors paths below dataRoot into trashRoot.
type Coordinator struct {
	fs        afero.Fs
	dataRoot  string
	trashRoot string
}

// New returns a coordinator; an empty trashRoot disables trashing.
func New(fsys afero.Fs, dataRoot, trashRoot string) *Coordinator {
	return &Coordinator{fs: fsys, dataRoot: filepath.Clean(dataRoot), trashRoot: trashRoot}
}

func (c *Coordinator) Enabled() bool {
	return c.trashRoot != ""
}

func (c *Coordinator) Root() string {
	return c.trashRoot
}

// Trash moves p to trashRoot/<p relative to dataRoot>. If that is taken it
// retries once under trashRoot/<uuid>/; a second conflict is an error.
func (c *Coordinator) Trash(p string) (Outcome, error) {
	if !c.Enabled() {
		log.WithField("path", p).Debug("no trash configured")
		return Skipped, nil
	}

	rel, err := filepath.Rel(c.dataRoot, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Skipped, serr.NotValid("%s is not under data root %s", p, c.dataRoot)
	}

	err = fsutil.Move(c.fs, p, filepath.Join(c.trashRoot, rel), false)
	if err == nil {
		log.WithField("path", p).Debug("moved to trash")
		return Moved, nil
	}
	if !stderrors.Is(err, serr.ErrAlreadyExists) {
		return Skipped, err
	}

	unique := filepath.Join(c.trashRoot, uuid.NewString(), rel)
	if err := fsutil.Move(c.fs, p, unique, false); err != nil {
		if stderrors.Is(err, serr.ErrAlreadyExists) {
			return Skipped, serr.Generic(err, "cannot trash %s", p)
		}
		return Skipped, err
	}
	log.WithField("path", p).Debugf("moved to trash under %s", unique)
	return MovedUnique, nil
}
