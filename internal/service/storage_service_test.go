package service

import (
	"context"
	"io"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ETERNA-earkiv/ETERNA/internal/domain"
	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
	"github.com/ETERNA-earkiv/ETERNA/internal/iterable"
	"github.com/ETERNA-earkiv/ETERNA/internal/repository/objectstore"
	"github.com/ETERNA-earkiv/ETERNA/internal/scatter"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/fsutil"
)

type env struct {
	fs   afero.Fs
	root string
	base string
	svc  *ScatteredStorageService
}

func testRegistry(t *testing.T) *scatter.Registry {
	t.Helper()
	reg, err := scatter.NewRegistry(map[string]scatter.Config{
		"aip":   {Rule: "0-2,2-4", Type: "directory"},
		"files": {Method: "pattern", Regex: "(.)(.).*", Rule: "$1/$2", Type: "file"},
	})
	require.NoError(t, err)
	return reg
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	fsys := afero.NewOsFs()
	root := t.TempDir()
	base := filepath.Join(root, "storage")

	opts = append([]Option{WithFs(fsys), WithRegistry(testRegistry(t)), WithResolver(objectstore.NewResolver(fsys))}, opts...)
	svc, err := New(base, opts...)
	require.NoError(t, err)
	return &env{fs: fsys, root: root, base: base, svc: svc}
}

func (e *env) putBinary(t *testing.T, path, content string) *domain.Binary {
	t.Helper()
	sp, err := domain.ParseStoragePath(path)
	require.NoError(t, err)
	b, err := e.svc.CreateBinary(context.Background(), sp, domain.BytesPayload(content), false)
	require.NoError(t, err)
	return b
}

func content(t *testing.T, b *domain.Binary) string {
	t.Helper()
	rc, err := b.Content.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// listed collects the sorted paths of a listing call.
func listed(t *testing.T) func(Resources, error) []string {
	return func(it Resources, err error) []string {
		t.Helper()
		require.NoError(t, err)
		resources, err := iterable.Collect(it)
		require.NoError(t, err)
		out := make([]string, 0, len(resources))
		for _, r := range resources {
			require.NotNil(t, r)
			out = append(out, r.StoragePath().String())
		}
		sort.Strings(out)
		return out
	}
}

func sp(parts ...string) domain.StoragePath {
	return domain.MustParse(parts...)
}

func TestContainers(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.CreateContainer(sp("aip"))
	require.NoError(t, err)
	_, err = e.svc.CreateContainer(sp("other"))
	require.NoError(t, err)

	_, err = e.svc.CreateContainer(sp("aip"))
	assert.ErrorIs(t, err, serr.ErrAlreadyExists)
	_, err = e.svc.CreateContainer(sp("aip", "x"))
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)

	c, err := e.svc.GetContainer(sp("aip"))
	require.NoError(t, err)
	assert.Equal(t, "aip", c.Path.String())
	_, err = e.svc.GetContainer(sp("missing"))
	assert.ErrorIs(t, err, serr.ErrNotFound)

	it, err := e.svc.ListContainers()
	require.NoError(t, err)
	containers, err := iterable.Collect(it)
	require.NoError(t, err)
	var names []string
	for _, c := range containers {
		names = append(names, c.Path.String())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"aip", "other"}, names)

	kind, err := e.svc.GetEntity(sp("aip"))
	require.NoError(t, err)
	assert.Equal(t, domain.KindContainer, kind)
}

func TestScatteredLayout(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.CreateDirectory(sp("aip", "abcdefgh"))
	require.NoError(t, err)
	b := e.putBinary(t, "aip/abcdefgh/data/f.txt", "hello")

	assert.True(t, fsutil.IsDirectory(e.fs, filepath.Join(e.base, "aip", "ab", "cd", "abcdefgh")))
	assert.True(t, fsutil.IsFile(e.fs, filepath.Join(e.base, "aip", "ab", "cd", "abcdefgh", "data", "f.txt")))
	assert.EqualValues(t, 5, b.SizeInBytes)
	assert.Equal(t, filepath.Join(e.base, "aip", "ab", "cd", "abcdefgh", "data", "f.txt"), e.svc.Resolve(b.Path))

	got, err := e.svc.GetBinary(sp("aip", "abcdefgh", "data", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", content(t, got))
	assert.False(t, got.IsReference)

	_, err = e.svc.CreateBinary(context.Background(), b.Path, domain.BytesPayload("again"), false)
	assert.ErrorIs(t, err, serr.ErrAlreadyExists)
	assert.Equal(t, "hello", content(t, got))

	_, err = e.svc.CreateDirectory(sp("aip", "abcdefgh"))
	assert.ErrorIs(t, err, serr.ErrAlreadyExists)

	kind, err := e.svc.GetEntity(sp("aip", "abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, domain.KindDirectory, kind)
	kind, err = e.svc.GetEntity(b.Path)
	require.NoError(t, err)
	assert.Equal(t, domain.KindBinary, kind)
	_, err = e.svc.GetEntity(sp("aip", "nothing"))
	assert.ErrorIs(t, err, serr.ErrNotFound)

	assert.True(t, e.svc.HasDirectory(sp("aip", "abcdefgh")))
	assert.False(t, e.svc.HasDirectory(b.Path))
	_, err = e.svc.GetDirectory(b.Path)
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)
	_, err = e.svc.GetBinary(sp("aip", "abcdefgh"))
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)

	reversed, err := e.svc.Reverse(e.svc.Resolve(b.Path))
	require.NoError(t, err)
	assert.True(t, b.Path.Equal(reversed))
}

func TestListAndCount(t *testing.T) {
	e := newEnv(t)
	e.putBinary(t, "aip/abcdefgh/data/f.txt", "x")
	e.putBinary(t, "aip/zzyyxxww/meta.json", "{}")
	e.putBinary(t, "other/dir/a", "a")
	e.putBinary(t, "other/b", "b")

	assert.Equal(t, []string{"aip/abcdefgh", "aip/zzyyxxww"},
		listed(t)(e.svc.ListResourcesUnderContainer(sp("aip"), false)))
	assert.Equal(t, []string{
		"aip/abcdefgh",
		"aip/abcdefgh/data",
		"aip/abcdefgh/data/f.txt",
		"aip/zzyyxxww",
		"aip/zzyyxxww/meta.json",
	}, listed(t)(e.svc.ListResourcesUnderContainer(sp("aip"), true)))
	assert.Equal(t, []string{"other/b", "other/dir"},
		listed(t)(e.svc.ListResourcesUnderContainer(sp("other"), false)))
	assert.Equal(t, []string{"aip/abcdefgh/data/f.txt"},
		listed(t)(e.svc.ListResourcesUnderDirectory(sp("aip", "abcdefgh", "data"), false)))
	assert.Equal(t, []string{"aip/abcdefgh/data", "aip/abcdefgh/data/f.txt"},
		listed(t)(e.svc.ListResourcesUnderDirectory(sp("aip", "abcdefgh"), true)))

	n, err := e.svc.CountResourcesUnderContainer(sp("aip"), false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	n, err = e.svc.CountResourcesUnderContainer(sp("aip"), true)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	n, err = e.svc.CountResourcesUnderContainer(sp("other"), true)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	n, err = e.svc.CountResourcesUnderDirectory(sp("aip", "abcdefgh"), false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = e.svc.ListResourcesUnderContainer(sp("aip", "abcdefgh"), false)
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)
}

func TestCreateRandom(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	d, err := e.svc.CreateRandomDirectory(sp("aip"))
	require.NoError(t, err)
	id := d.Path.Name()
	assert.Equal(t, 2, d.Path.Len())
	assert.True(t, fsutil.IsDirectory(e.fs, filepath.Join(e.base, "aip", id[0:2], id[2:4], id)))
	assert.Equal(t, []string{"aip/" + id}, listed(t)(e.svc.ListResourcesUnderContainer(sp("aip"), false)))

	sub, err := e.svc.CreateRandomDirectory(d.Path)
	require.NoError(t, err)
	assert.True(t, fsutil.IsDirectory(e.fs, filepath.Join(e.base, "aip", id[0:2], id[2:4], id, sub.Path.Name())))

	b, err := e.svc.CreateRandomBinary(ctx, sp("files"), domain.BytesPayload("data"), false)
	require.NoError(t, err)
	name := b.Path.Name()
	assert.True(t, fsutil.IsFile(e.fs, filepath.Join(e.base, "files", name[0:1], name[1:2], name)))
	assert.Equal(t, "data", content(t, b))

	_, err = e.svc.CreateRandomBinary(ctx, sp("files"), domain.BytesPayload("data"), true)
	assert.ErrorIs(t, err, serr.ErrNotImplemented)
}

func TestReferences(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	external := filepath.Join(e.root, "outside", "a.bin")
	require.NoError(t, afero.WriteFile(e.fs, external, []byte("external bytes"), 0o644))

	manifest := sp("other", "dir", fsutil.DefaultManifestName)
	a := domain.ShallowFile{Name: "a", Location: "file://" + filepath.ToSlash(external), Size: 14}
	bFile := domain.ShallowFile{Name: "b", Location: "s3://bucket/b", Size: 7}

	m, err := e.svc.CreateBinary(ctx, manifest, domain.ManifestPayload{Files: []domain.ShallowFile{a}}, true)
	require.NoError(t, err)
	assert.True(t, m.IsReference)
	_, err = e.svc.CreateBinary(ctx, manifest, domain.ManifestPayload{Files: []domain.ShallowFile{bFile}}, true)
	require.NoError(t, err)
	_, err = e.svc.CreateBinary(ctx, manifest, domain.ManifestPayload{Files: []domain.ShallowFile{a}}, true)
	assert.ErrorIs(t, err, serr.ErrAlreadyExists)
	_, err = e.svc.CreateBinary(ctx, manifest, domain.BytesPayload("x"), true)
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)

	assert.Equal(t, []string{"other/dir/a", "other/dir/b"}, listed(t)(e.svc.ListResourcesUnderFile(manifest)))

	ref, err := e.svc.GetBinary(sp("other", "dir", "a"))
	require.NoError(t, err)
	assert.True(t, ref.IsReference)
	assert.EqualValues(t, 14, ref.SizeInBytes)
	assert.Equal(t, "external bytes", content(t, ref))
	assert.True(t, e.svc.HasBinary(sp("other", "dir", "b")))

	kind, err := e.svc.GetEntity(sp("other", "dir", "b"))
	require.NoError(t, err)
	assert.Equal(t, domain.KindBinary, kind)

	bFile.Size = 99
	updated, err := e.svc.UpdateBinaryContent(ctx, manifest, domain.ManifestPayload{Files: []domain.ShallowFile{bFile}}, true, false)
	require.NoError(t, err)
	assert.Equal(t, "other/dir/b", updated.Path.String())
	assert.EqualValues(t, 99, updated.SizeInBytes)

	shallow, err := e.svc.ShallowFiles(sp("other"))
	require.NoError(t, err)
	require.Len(t, shallow, 1)
	assert.True(t, manifest.Equal(shallow[0]))

	require.NoError(t, e.svc.DeleteResource(sp("other", "dir", "a")))
	assert.False(t, e.svc.HasBinary(sp("other", "dir", "a")))
	assert.True(t, e.svc.HasBinary(sp("other", "dir", "b")))
	assert.ErrorIs(t, e.svc.DeleteResource(sp("other", "dir", "a")), serr.ErrNotFound)
}

func TestUpdateBinaryContent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := sp("aip", "abcdefgh", "f")

	_, err := e.svc.UpdateBinaryContent(ctx, p, domain.BytesPayload("x"), false, false)
	assert.ErrorIs(t, err, serr.ErrNotFound)

	b, err := e.svc.UpdateBinaryContent(ctx, p, domain.BytesPayload("first"), false, true)
	require.NoError(t, err)
	assert.Equal(t, "first", content(t, b))

	b, err = e.svc.UpdateBinaryContent(ctx, p, domain.BytesPayload("second"), false, false)
	require.NoError(t, err)
	assert.Equal(t, "second", content(t, b))
	assert.EqualValues(t, 6, b.SizeInBytes)

	_, err = e.svc.UpdateBinaryContent(ctx, sp("aip", "abcdefgh"), domain.BytesPayload("x"), false, false)
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)
}

func TestDeleteCascadesHistory(t *testing.T) {
	e := newEnv(t)
	f := sp("aip", "abcdefgh", "f")
	e.putBinary(t, "aip/abcdefgh/f", "v0")

	for i := 0; i < 3; i++ {
		_, err := e.svc.CreateBinaryVersion(f, map[string]string{"n": "x"})
		require.NoError(t, err)
	}
	versions, err := iterable.Collect(mustVersions(t, e, f))
	require.NoError(t, err)
	require.Len(t, versions, 3)

	require.NoError(t, e.svc.DeleteResource(sp("aip", "abcdefgh")))

	assert.False(t, e.svc.Exists(f))
	assert.True(t, fsutil.IsFile(e.fs, filepath.Join(e.root, "trash", "storage", "aip", "ab", "cd", "abcdefgh", "f")))
	assert.False(t, fsutil.Exists(e.fs, filepath.Join(e.base, "aip", "ab")), "empty fan-out directories are pruned")
	assert.True(t, fsutil.IsDirectory(e.fs, filepath.Join(e.base, "aip")))

	versions, err = iterable.Collect(mustVersions(t, e, f))
	require.NoError(t, err)
	assert.Empty(t, versions)

	trashed, err := afero.Glob(e.fs, filepath.Join(e.root, "trash", "storage-history", "data", "aip", "ab", "cd", "abcdefgh", "f_*"))
	require.NoError(t, err)
	assert.Len(t, trashed, 3)
	trashed, err = afero.Glob(e.fs, filepath.Join(e.root, "trash", "storage-history", "metadata", "aip", "ab", "cd", "abcdefgh", "f_*.json"))
	require.NoError(t, err)
	assert.Len(t, trashed, 3)
}

func mustVersions(t *testing.T, e *env, p domain.StoragePath) iterable.CloseableIterable[*domain.BinaryVersion] {
	t.Helper()
	it, err := e.svc.ListBinaryVersions(p)
	require.NoError(t, err)
	return it
}

func TestVersions(t *testing.T) {
	e := newEnv(t)
	f := sp("other", "f")
	e.putBinary(t, "other/f", "original")

	v, err := e.svc.CreateBinaryVersion(f, nil)
	require.NoError(t, err)
	_, err = e.svc.UpdateBinaryContent(context.Background(), f, domain.BytesPayload("changed"), false, false)
	require.NoError(t, err)

	got, err := e.svc.GetBinaryVersion(f, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", content(t, got.Binary))

	require.NoError(t, e.svc.RevertBinaryVersion(f, v.ID))
	b, err := e.svc.GetBinary(f)
	require.NoError(t, err)
	assert.Equal(t, "original", content(t, b))

	require.NoError(t, e.svc.DeleteBinaryVersion(f, v.ID))
	_, err = e.svc.GetBinaryVersion(f, v.ID)
	assert.ErrorIs(t, err, serr.ErrNotFound)

	_, err = e.svc.GetBinaryVersion(f, "has_separator")
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)
}

func TestDeleteWithoutTrashOrHistory(t *testing.T) {
	e := newEnv(t, WithoutTrash(), WithoutHistory())
	e.putBinary(t, "other/f", "x")

	v, err := e.svc.CreateBinaryVersion(sp("other", "f"), nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, e.svc.DeleteResource(sp("other", "f")))
	assert.False(t, e.svc.Exists(sp("other", "f")))
	assert.False(t, fsutil.Exists(e.fs, filepath.Join(e.root, "trash")))
	assert.False(t, fsutil.Exists(e.fs, filepath.Join(e.root, "storage-history")))

	require.NoError(t, e.svc.DeleteContainer(sp("other")))
	assert.ErrorIs(t, e.svc.DeleteContainer(sp("other", "f")), serr.ErrRequestNotValid)
}

func TestWriteRejectsIDTooShortForScatterRule(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.CreateContainer(sp("aip"))
	require.NoError(t, err)

	_, err = e.svc.CreateBinary(ctx, sp("aip", "a"), domain.BytesPayload("x"), false)
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)
	_, err = e.svc.CreateDirectory(sp("aip", "abc"))
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)
	_, err = e.svc.UpdateBinaryContent(ctx, sp("aip", "a"), domain.BytesPayload("x"), false, true)
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)

	assert.False(t, fsutil.Exists(e.fs, filepath.Join(e.base, "aip", "a")))
	assert.False(t, fsutil.Exists(e.fs, filepath.Join(e.base, "aip", "abc")))
	assert.Empty(t, listed(t)(e.svc.ListResourcesUnderContainer(sp("aip"), true)))
	_, err = e.svc.GetBinary(sp("aip", "a"))
	assert.ErrorIs(t, err, serr.ErrNotFound)
}

func TestDeleteWithoutTrashPurgesHistory(t *testing.T) {
	e := newEnv(t, WithoutTrash())
	f := sp("aip", "abcdefgh", "f")
	e.putBinary(t, "aip/abcdefgh/f", "v0")
	for i := 0; i < 3; i++ {
		_, err := e.svc.CreateBinaryVersion(f, nil)
		require.NoError(t, err)
	}

	require.NoError(t, e.svc.DeleteResource(sp("aip", "abcdefgh")))
	versions, err := iterable.Collect(mustVersions(t, e, f))
	require.NoError(t, err)
	assert.Empty(t, versions)
	assert.False(t, fsutil.Exists(e.fs, filepath.Join(e.root, "storage-history", "data", "aip", "ab")))

	e.putBinary(t, "aip/abcdefgh/f", "v1")
	versions, err = iterable.Collect(mustVersions(t, e, f))
	require.NoError(t, err)
	assert.Empty(t, versions, "a recreated binary does not inherit old versions")
	assert.False(t, fsutil.Exists(e.fs, filepath.Join(e.root, "trash")))
}

func TestHistoryRootOutsideDataRoot(t *testing.T) {
	hist := filepath.Join(t.TempDir(), "h")
	e := newEnv(t, WithHistoryRoot(hist))
	f := sp("other", "f")
	e.putBinary(t, "other/f", "x")

	v, err := e.svc.CreateBinaryVersion(f, nil)
	require.NoError(t, err)
	require.NoError(t, e.svc.DeleteBinaryVersion(f, v.ID))
	assert.True(t, fsutil.IsFile(e.fs, filepath.Join(e.root, "trash", "h", "data", "other", "f_"+v.ID)))
	assert.True(t, fsutil.IsFile(e.fs, filepath.Join(e.root, "trash", "h", "metadata", "other", "f_"+v.ID+".json")))

	_, err = e.svc.CreateBinaryVersion(f, nil)
	require.NoError(t, err)
	require.NoError(t, e.svc.DeleteResource(f))
	versions, err := iterable.Collect(mustVersions(t, e, f))
	require.NoError(t, err)
	assert.Empty(t, versions)
	trashed, err := afero.Glob(e.fs, filepath.Join(e.root, "trash", "h", "data", "other", "f_*"))
	require.NoError(t, err)
	assert.Len(t, trashed, 2)
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	e.putBinary(t, "aip/abcdefgh/data/f", "x")

	out := filepath.Join(e.root, "export")
	require.NoError(t, e.svc.Export(sp("aip", "abcdefgh"), "data", out))
	data, err := afero.ReadFile(e.fs, filepath.Join(out, "f"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	assert.ErrorIs(t, e.svc.Export(sp("aip", "nothing"), "", filepath.Join(e.root, "x")), serr.ErrNotFound)
}
