// Package objectstore opens the external content that manifest records point
// at. A location is a URI naming a backend and a key inside it:
//
//	file:///abs/path/to/object
//	s3://bucket/prefix/object
//	gs://bucket/prefix/object
//
// Clients for the cloud backends are created on first use, so a store that
// only references local files never loads cloud credentials.
package objectstore

import (
	"context"
	"io"
)

// ObjectRepository reads objects of one bucket (or one filesystem).
type ObjectRepository interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Size(ctx context.Context, key string) (int64, error)
	GetBucketName() string
	GetStorageType() string
}

// RepositoryType represents the type of object storage
type RepositoryType string

const (
	S3Type   RepositoryType = "s3"
	GCSType  RepositoryType = "gcs"
	FileType RepositoryType = "file"
)

// Location is a parsed external reference.
type Location struct {
	Type   RepositoryType
	Bucket string
	Key    string
}

func (l Location) String() string {
	switch l.Type {
	case S3Type:
		return "s3://" + l.Bucket + "/" + l.Key
	case GCSType:
		return "gs://" + l.Bucket + "/" + l.Key
	default:
		return "file://" + l.Key
	}
}
