package objectstore

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ParseLocation parses an external reference.
// Formats: "s3://bucket/key", "gs://bucket/key", "file:///abs/path" or a bare
// absolute path.
func ParseLocation(location string) (Location, error) {
	location = strings.TrimSpace(location)

	if !strings.Contains(location, "://") {
		if filepath.IsAbs(location) {
			return Location{Type: FileType, Key: location}, nil
		}
		return Location{}, fmt.Errorf("location must be a URI or an absolute path: %q", location)
	}

	parts := strings.SplitN(location, "://", 2)
	scheme := strings.ToLower(strings.TrimSpace(parts[0]))
	rest := parts[1]

	switch scheme {
	case "file":
		if !strings.HasPrefix(rest, "/") {
			return Location{}, fmt.Errorf("file location must be absolute: %q", location)
		}
		return Location{Type: FileType, Key: filepath.FromSlash(rest)}, nil
	case "s3", "gs":
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Location{}, fmt.Errorf("bucket name cannot be empty")
		}
		if key == "" {
			return Location{}, fmt.Errorf("object key cannot be empty")
		}
		repoType := S3Type
		if scheme == "gs" {
			repoType = GCSType
		}
		return Location{Type: repoType, Bucket: bucket, Key: key}, nil
	default:
		return Location{}, fmt.Errorf("unsupported scheme: %s", scheme)
	}
}

// Resolver hands out repositories for locations, creating cloud clients on
// first use and reusing them afterwards. It is safe for concurrent use.
type Resolver struct {
	fs           afero.Fs
	s3Endpoint   string
	s3PathStyle  bool
	awsConfig    *aws.Config
	gcsClient    *storage.Client
	ownGCSClient bool

	mu       sync.Mutex
	s3Client *s3.Client
}

type ResolverOption func(*Resolver)

// WithS3Endpoint points the S3 client at an S3 compatible service.
func WithS3Endpoint(endpoint string, pathStyle bool) ResolverOption {
	return func(r *Resolver) {
		r.s3Endpoint = endpoint
		r.s3PathStyle = pathStyle
	}
}

// WithAWSConfig skips loading the default AWS configuration chain.
func WithAWSConfig(cfg aws.Config) ResolverOption {
	return func(r *Resolver) {
		r.awsConfig = &cfg
	}
}

func WithGCSClient(client *storage.Client) ResolverOption {
	return func(r *Resolver) {
		r.gcsClient = client
	}
}

// NewResolver creates a resolver that reads file locations from fsys.
func NewResolver(fsys afero.Fs, opts ...ResolverOption) *Resolver {
	r := &Resolver{fs: fsys}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Repository returns the repository serving loc.
func (r *Resolver) Repository(ctx context.Context, loc Location) (ObjectRepository, error) {
	switch loc.Type {
	case FileType:
		return NewFileObjectRepository(r.fs), nil
	case S3Type:
		client, err := r.s3(ctx)
		if err != nil {
			return nil, err
		}
		return NewS3ObjectRepository(client, loc.Bucket), nil
	case GCSType:
		client, err := r.gcs(ctx)
		if err != nil {
			return nil, err
		}
		return NewGCSObjectRepository(client, loc.Bucket), nil
	default:
		return nil, fmt.Errorf("unsupported repository type: %s", loc.Type)
	}
}

// Open streams the content at location.
func (r *Resolver) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	repo, err := r.Repository(ctx, loc)
	if err != nil {
		return nil, err
	}
	return repo.Download(ctx, loc.Key)
}

// Size returns the size of the content at location.
func (r *Resolver) Size(ctx context.Context, location string) (int64, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return 0, err
	}
	repo, err := r.Repository(ctx, loc)
	if err != nil {
		return 0, err
	}
	return repo.Size(ctx, loc.Key)
}

// Close releases the GCS client if the resolver created it.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ownGCSClient && r.gcsClient != nil {
		err := r.gcsClient.Close()
		r.gcsClient = nil
		return err
	}
	return nil
}

func (r *Resolver) s3(ctx context.Context) (*s3.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s3Client != nil {
		return r.s3Client, nil
	}

	if r.awsConfig == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
		}
		r.awsConfig = &cfg
	}

	r.s3Client = s3.NewFromConfig(*r.awsConfig, func(o *s3.Options) {
		if r.s3Endpoint != "" {
			o.BaseEndpoint = aws.String(r.s3Endpoint)
		}
		o.UsePathStyle = r.s3PathStyle
	})
	log.Debug("created S3 client for reference resolution")
	return r.s3Client, nil
}

func (r *Resolver) gcs(ctx context.Context) (*storage.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gcsClient != nil {
		return r.gcsClient, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to create GCS client: %w", err)
	}
	r.gcsClient = client
	r.ownGCSClient = true
	log.Debug("created GCS client for reference resolution")
	return client, nil
}
