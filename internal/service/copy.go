package service

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/ETERNA-earkiv/ETERNA/internal/domain"
	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/fsutil"
)

// Store is the entity level contract used to copy and move between storage
// implementations.
type Store interface {
	GetEntity(sp domain.StoragePath) (domain.EntityKind, error)
	CreateContainer(sp domain.StoragePath) (*domain.Container, error)
	CreateDirectory(sp domain.StoragePath) (*domain.Directory, error)
	GetBinary(sp domain.StoragePath) (*domain.Binary, error)
	CreateBinary(ctx context.Context, sp domain.StoragePath, payload domain.ContentPayload, asReference bool) (*domain.Binary, error)
	ListResourcesUnderContainer(sp domain.StoragePath, recursive bool) (Resources, error)
	ListResourcesUnderDirectory(sp domain.StoragePath, recursive bool) (Resources, error)
	DeleteResource(sp domain.StoragePath) error
}

// LocalStore is a Store whose entities are plain files that can be reached
// directly.
type LocalStore interface {
	Store
	Fs() afero.Fs
	Resolve(sp domain.StoragePath) string
}

var _ LocalStore = (*ScatteredStorageService)(nil)

// Copy copies from/fromPath to toPath in s. Entities of local stores are
// copied on disk, anything else entity by entity. Whole containers always go
// entity by entity since source and target may be scattered differently.
func (s *ScatteredStorageService) Copy(ctx context.Context, from Store, fromPath, toPath domain.StoragePath) error {
	if local, ok := from.(LocalStore); ok && !fromPath.IsFromAContainer() {
		dst, err := s.resolveForWrite(toPath)
		if err != nil {
			return err
		}
		return fsutil.CopyBetween(local.Fs(), local.Resolve(fromPath), s.fs, dst, false)
	}
	kind, err := from.GetEntity(fromPath)
	if err != nil {
		return err
	}
	return CopyBetween(ctx, from, fromPath, s, toPath, kind)
}

// Move moves from/fromPath to toPath in s. Within one filesystem an entity
// below a container is renamed; its versions follow it inside one store and
// are cascaded like a deletion when it leaves another.
func (s *ScatteredStorageService) Move(ctx context.Context, from Store, fromPath, toPath domain.StoragePath) error {
	if local, ok := from.(LocalStore); ok && local.Fs() == s.fs && !fromPath.IsFromAContainer() {
		dst, err := s.resolveForWrite(toPath)
		if err != nil {
			return err
		}
		src := local.Resolve(fromPath)
		if err := fsutil.Move(s.fs, src, dst, false); err != nil {
			return err
		}
		if source, ok := from.(*ScatteredStorageService); ok {
			source.pruneScatter(fromPath, src)
			s.moveHistory(source, fromPath, toPath)
		}
		return nil
	}
	kind, err := from.GetEntity(fromPath)
	if err != nil {
		return err
	}
	return MoveBetween(ctx, from, fromPath, s, toPath, kind)
}

func (s *ScatteredStorageService) moveHistory(source *ScatteredStorageService, fromPath, toPath domain.StoragePath) {
	var err error
	if source == s {
		err = s.history.Relocate(fromPath, toPath)
	} else {
		err = source.history.DeleteAllUnder(fromPath)
	}
	if err != nil {
		log.WithField("path", fromPath.String()).Warnf("could not move history: %v", err)
	}
}

// CopyBetween recreates the entity of the given kind at fromPath in from as
// toPath in to, descending into containers and directories.
func CopyBetween(ctx context.Context, from Store, fromPath domain.StoragePath, to Store, toPath domain.StoragePath, kind domain.EntityKind) error {
	switch kind {
	case domain.KindContainer:
		if _, err := to.CreateContainer(toPath); err != nil {
			return err
		}
		it, err := from.ListResourcesUnderContainer(fromPath, false)
		if err != nil {
			return err
		}
		return copyChildren(ctx, from, fromPath, to, toPath, it)
	case domain.KindDirectory:
		if _, err := to.CreateDirectory(toPath); err != nil {
			return err
		}
		it, err := from.ListResourcesUnderDirectory(fromPath, false)
		if err != nil {
			return err
		}
		return copyChildren(ctx, from, fromPath, to, toPath, it)
	case domain.KindBinary:
		b, err := from.GetBinary(fromPath)
		if err != nil {
			return err
		}
		_, err = to.CreateBinary(ctx, toPath, b.Content, false)
		return err
	default:
		return serr.NotValid("cannot copy entity of kind %s", kind)
	}
}

// MoveBetween copies and then deletes the source.
func MoveBetween(ctx context.Context, from Store, fromPath domain.StoragePath, to Store, toPath domain.StoragePath, kind domain.EntityKind) error {
	if err := CopyBetween(ctx, from, fromPath, to, toPath, kind); err != nil {
		return err
	}
	return from.DeleteResource(fromPath)
}

func copyChildren(ctx context.Context, from Store, fromPath domain.StoragePath, to Store, toPath domain.StoragePath, it Resources) error {
	defer it.Close()
	for r := range it.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r == nil {
			log.WithField("path", fromPath.String()).Warn("skipping an entry that could not be listed")
			continue
		}
		child, err := rebase(r.StoragePath(), fromPath, toPath)
		if err != nil {
			return err
		}
		kind := domain.KindBinary
		if r.IsDirectory() {
			kind = domain.KindDirectory
		}
		if err := CopyBetween(ctx, from, r.StoragePath(), to, child, kind); err != nil {
			return err
		}
	}
	return nil
}

// rebase moves sp from below oldRoot to below newRoot.
func rebase(sp, oldRoot, newRoot domain.StoragePath) (domain.StoragePath, error) {
	parts, prefix := sp.AsList(), oldRoot.AsList()
	if len(parts) <= len(prefix) {
		return domain.StoragePath{}, fmt.Errorf("%s is not below %s", sp, oldRoot)
	}
	for i := range prefix {
		if parts[i] != prefix[i] {
			return domain.StoragePath{}, fmt.Errorf("%s is not below %s", sp, oldRoot)
		}
	}
	return domain.Parse(append(newRoot.AsList(), parts[len(prefix):]...)...)
}
