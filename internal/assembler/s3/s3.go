// Package s3 stores committed files in an S3 compatible bucket.
package s3

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/exchangesets/fsstransfer/internal/assembler"
	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store is an artifact store in an S3 bucket.
type Store struct {
	client *minio.Client
	cfg    Config
}

// make sure that *Store implements assembler.ArtifactStore
var _ assembler.ArtifactStore = &Store{}

// Open returns a store for the bucket in cfg. The bucket must exist.
func Open(_ context.Context, cfg Config, rt http.RoundTripper) (*Store, error) {
	debug.Log("open, endpoint %v bucket %v prefix %v", cfg.Endpoint, cfg.Bucket, cfg.Prefix)

	if cfg.MaxRetries > 0 {
		minio.MaxRetry = int(cfg.MaxRetries)
	}

	// static credentials first, then the usual environment and files
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.Static{
			Value: credentials.Value{
				AccessKeyID:     cfg.KeyID,
				SecretAccessKey: cfg.Secret.Unwrap(),
			},
		},
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.FileAWSCredentials{},
		&credentials.FileMinioClient{},
	})

	options := &minio.Options{
		Creds:     creds,
		Secure:    !cfg.UseHTTP,
		Region:    cfg.Region,
		Transport: rt,
	}

	switch strings.ToLower(cfg.BucketLookup) {
	case "", "auto":
		options.BucketLookup = minio.BucketLookupAuto
	case "dns":
		options.BucketLookup = minio.BucketLookupDNS
	case "path":
		options.BucketLookup = minio.BucketLookupPath
	default:
		return nil, fmt.Errorf(`bad bucket-lookup style %q must be "auto", "path" or "dns"`, cfg.BucketLookup)
	}

	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, errors.Wrap(err, "minio.New")
	}

	return &Store{client: client, cfg: cfg}, nil
}

func (s *Store) objectName(batchID, fileName string) (string, error) {
	return assembler.ObjectName(s.cfg.Prefix, batchID, fileName)
}

// Put implements assembler.ArtifactStore.
func (s *Store) Put(ctx context.Context, batchID, fileName string, rd io.Reader, size int64) error {
	objName, err := s.objectName(batchID, fileName)
	if err != nil {
		return err
	}

	opts := minio.PutObjectOptions{
		ContentType:    "application/octet-stream",
		SendContentMd5: true,
		// only use multipart uploads for very large files
		PartSize: 200 * 1024 * 1024,
	}

	debug.Log("PutObject(%v, %v, %v)", s.cfg.Bucket, objName, size)
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, objName, rd, size, opts)
	if err != nil {
		return errors.Wrap(err, "client.PutObject")
	}

	// sanity check
	if info.Size != size {
		return errors.Errorf("wrote %d bytes instead of the expected %d bytes", info.Size, size)
	}
	return nil
}

// Open implements assembler.ArtifactStore.
func (s *Store) Open(ctx context.Context, batchID, fileName string) (io.ReadCloser, int64, error) {
	objName, err := s.objectName(batchID, fileName)
	if err != nil {
		return nil, 0, err
	}

	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, objName, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, errors.Wrap(err, "client.GetObject")
	}

	// GetObject is lazy, Stat issues the request
	fi, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, errors.Wrap(err, "Stat")
	}

	return obj, fi.Size, nil
}

// IsNotExist returns true if the error is caused by a not existing file.
func (s *Store) IsNotExist(err error) bool {
	var e minio.ErrorResponse
	return errors.As(err, &e) && e.Code == "NoSuchKey"
}
