package objstore

import (
	"context"
	"io"
	"net/url"
	"time"

	"bittietasks-controlplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("objstore",
	fx.Provide(NewClient, ProvidePhotoStore),
	fx.Invoke(ensureBucket),
)

func NewClient(cfg *config.Config) (*minio.Client, error) {
	return minio.New(cfg.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
		Secure: cfg.Minio.Secure,
	})
}

func ensureBucket(lc fx.Lifecycle, cfg *config.Config, client *minio.Client) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			exists, err := client.BucketExists(ctx, cfg.Minio.BucketName)
			if err != nil {
				return err
			}
			if !exists {
				zap.L().Info("creating bucket", zap.String("bucket", cfg.Minio.BucketName))
				return client.MakeBucket(ctx, cfg.Minio.BucketName, minio.MakeBucketOptions{})
			}
			return nil
		},
	})
}

// PhotoStore keeps verification photo uploads out of the database.
type PhotoStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	PresignedGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type photoStore struct {
	client *minio.Client
	bucket string
}

func ProvidePhotoStore(cfg *config.Config, client *minio.Client) PhotoStore {
	return &photoStore{
		client: client,
		bucket: cfg.Minio.BucketName,
	}
}

func (s *photoStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return info.Key, nil
}

func (s *photoStore) PresignedGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
