package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"HibiscusGuard/pkg/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// EvidenceStore 证据对象存储（音频/视频片段）
// 警报解决后引用即不可变，这里只提供写入与取链接，不提供覆盖
type EvidenceStore struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	BaseURL   string // 对外访问域名，可选
}

func NewEvidenceStore(endpoint, accessKey, secretKey, bucket string, useSSL bool, baseURL string) *EvidenceStore {
	return &EvidenceStore{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    bucket,
		UseSSL:    useSSL,
		BaseURL:   baseURL,
	}
}

func (e *EvidenceStore) client() (*minio.Client, error) {
	return minio.New(e.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(e.AccessKey, e.SecretKey, ""),
		Secure: e.UseSSL,
	})
}

func (e *EvidenceStore) ensureBucket(ctx context.Context, cli *minio.Client) error {
	exists, err := cli.BucketExists(ctx, e.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return cli.MakeBucket(ctx, e.Bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// ObjectKey 证据对象键：alerts/<alertID>/<kind>_<时间戳>.<ext>
func (e *EvidenceStore) ObjectKey(alertID, kind, ext string) string {
	return fmt.Sprintf("alerts/%s/%s_%s.%s", alertID, kind, time.Now().Format("20060102_150405"), ext)
}

// Put 上传证据并返回可访问链接
func (e *EvidenceStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	cli, err := e.client()
	if err != nil {
		return "", errors.WrapCode(err, errors.CodeEvidenceFailed, "evidence storage client")
	}
	if err := e.ensureBucket(ctx, cli); err != nil {
		return "", errors.WrapCode(err, errors.CodeEvidenceFailed, "evidence bucket")
	}
	_, err = cli.PutObject(ctx, e.Bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", errors.WrapCode(err, errors.CodeEvidenceFailed, "upload evidence "+key)
	}
	return e.PublicURL(key), nil
}

// Exists 检查证据对象是否存在
func (e *EvidenceStore) Exists(ctx context.Context, key string) (bool, error) {
	cli, err := e.client()
	if err != nil {
		return false, err
	}
	_, err = cli.StatObject(ctx, e.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *EvidenceStore) PublicURL(key string) string {
	if e.BaseURL != "" {
		return strings.TrimRight(e.BaseURL, "/") + "/" + key
	}
	// 回退使用 endpoint（注意直连可能需配置公共读策略）
	scheme := "http://"
	if e.UseSSL {
		scheme = "https://"
	}
	return scheme + e.Endpoint + "/" + e.Bucket + "/" + key
}
