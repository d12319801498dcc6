package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     Location
		wantErr  bool
	}{
		{"s3", "s3://bucket/a/b.bin", Location{Type: S3Type, Bucket: "bucket", Key: "a/b.bin"}, false},
		{"gs", "gs://bucket/a", Location{Type: GCSType, Bucket: "bucket", Key: "a"}, false},
		{"upper case scheme", "S3://bucket/a", Location{Type: S3Type, Bucket: "bucket", Key: "a"}, false},
		{"file uri", "file:///tmp/x", Location{Type: FileType, Key: filepath.FromSlash("/tmp/x")}, false},
		{"bare absolute path", "/tmp/x", Location{Type: FileType, Key: "/tmp/x"}, false},
		{"relative path", "tmp/x", Location{}, true},
		{"relative file uri", "file://tmp/x", Location{}, true},
		{"no bucket", "s3:///key", Location{}, true},
		{"no key", "gs://bucket", Location{}, true},
		{"unknown scheme", "ftp://host/x", Location{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation(tt.location)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocationString(t *testing.T) {
	for _, s := range []string{"s3://b/k/x", "gs://b/k"} {
		loc, err := ParseLocation(s)
		require.NoError(t, err)
		assert.Equal(t, s, loc.String())
	}
}

func TestResolver_File(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "external.bin")
	fsys := afero.NewOsFs()
	require.NoError(t, afero.WriteFile(fsys, p, []byte("external"), 0o644))

	r := NewResolver(fsys)
	ctx := context.Background()

	size, err := r.Size(ctx, "file://"+filepath.ToSlash(p))
	require.NoError(t, err)
	assert.EqualValues(t, 8, size)

	rc, err := r.Open(ctx, p)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "external", string(data))

	_, err = r.Size(ctx, dir)
	assert.Error(t, err)
	_, err = r.Open(ctx, filepath.Join(dir, "missing"))
	assert.Error(t, err)
	require.NoError(t, r.Close())
}

func TestResolver_S3CompatibleEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/archive/aip/1.bin" {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Length", "5")
		if req.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = io.WriteString(w, "hello")
	}))
	defer srv.Close()

	r := NewResolver(afero.NewMemMapFs(),
		WithAWSConfig(aws.Config{Region: "us-east-1", Credentials: aws.AnonymousCredentials{}}),
		WithS3Endpoint(srv.URL, true),
	)
	ctx := context.Background()

	size, err := r.Size(ctx, "s3://archive/aip/1.bin")
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)

	rc, err := r.Open(ctx, "s3://archive/aip/1.bin")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	repo, err := r.Repository(ctx, Location{Type: S3Type, Bucket: "archive"})
	require.NoError(t, err)
	assert.Equal(t, "archive", repo.GetBucketName())
	assert.Equal(t, "s3", repo.GetStorageType())
}

func TestResolver_UnsupportedType(t *testing.T) {
	r := NewResolver(afero.NewMemMapFs())
	_, err := r.Repository(context.Background(), Location{Type: "ftp"})
	assert.Error(t, err)
}
