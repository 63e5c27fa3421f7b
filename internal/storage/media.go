package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/segmentio/ksuid"
	"github.com/user/lms/internal/config"
)

// Upload 上传结果
type Upload struct {
	SecureURL string `json:"secureUrl"`
	PublicID  string `json:"publicId"`
}

// MediaStore 视频、缩略图、头像存储
type MediaStore struct {
	client *minio.Client
	cfg    config.StorageConfig
	useSSL bool
	host   string
}

// NewMediaStore 创建 S3 兼容存储客户端
func NewMediaStore(cfg config.StorageConfig) (*MediaStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &MediaStore{client: client, cfg: cfg, useSSL: useSSL, host: endpoint}, nil
}

// EnsureBucket 存储桶不存在时创建
func (s *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
		}
	}
	return nil
}

// UploadFile 按本地路径上传
func (s *MediaStore) UploadFile(ctx context.Context, path, contentType string) (*Upload, error) {
	publicID := NewPublicID(path, time.Now())
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.FPutObject(ctx, s.cfg.Bucket, publicID, path, opts); err != nil {
		return nil, fmt.Errorf("upload %s: %w", publicID, err)
	}
	return &Upload{SecureURL: s.URL(publicID), PublicID: publicID}, nil
}

// Delete 按 public id 删除，空 id 忽略
func (s *MediaStore) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, publicID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", publicID, err)
	}
	return nil
}

// URL 对象的访问地址
func (s *MediaStore) URL(publicID string) string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL + "/" + publicID
	}
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.host, s.cfg.Bucket, publicID)
}

// NewPublicID 生成 yyyy/mm/dd/<ksuid><ext>
func NewPublicID(filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%s%s", now.UTC().Format("2006/01/02"), ksuid.New().String(), ext)
}
