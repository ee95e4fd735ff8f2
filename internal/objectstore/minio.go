package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore — объекты в бакете MinIO / S3.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore создаёт клиент и проверяет существование бакета.
// endpoint принимается как "minio:9000" или "http(s)://minio:9000".
func NewMinioStore(ctx context.Context, rawEndpoint, accessKey, secretKey, bucket string) (*MinioStore, error) {
	endpoint, secure, err := normaliseEndpoint(rawEndpoint)
	if err != nil {
		return nil, fmt.Errorf("некорректный endpoint MinIO: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("создание клиента MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("проверка бакета %s: %w", bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("бакет MinIO не существует: %s", bucket)
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// Open открывает объект. Stat выполняется сразу, чтобы отсутствие
// объекта или проблемы доступа обнаружились до начала отдачи клиенту.
func (s *MinioStore) Open(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(key, err)
	}

	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, s.mapError(key, err)
	}

	return &Object{Body: obj, Size: info.Size, ContentType: info.ContentType}, nil
}

func (s *MinioStore) mapError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return ErrNotFound
	}
	return fmt.Errorf("чтение объекта %s из MinIO: %w", key, err)
}

// normaliseEndpoint приводит endpoint к виду host:port и определяет TLS.
func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("пустой endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("в endpoint нет хоста")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint не должен содержать путь")
		}
		return u.Host, u.Scheme == "https", nil
	}

	// Без схемы — host:port без TLS (локальный MinIO)
	return raw, false, nil
}
