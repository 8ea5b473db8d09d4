package media

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config はS3互換ストレージの接続設定。
type S3Config struct {
	Bucket string
	Region string
	// Endpoint はMinIOなどS3互換サービスのURL。空の場合はAWSを使う。
	Endpoint string
	// PublicBaseURL はオブジェクトの公開URLの起点。空の場合はバケットの仮想ホストURL。
	PublicBaseURL string
}

// S3Store はS3にオブジェクトを保存するObjectStore。
type S3Store struct {
	uploader *manager.Uploader
	cfg      S3Config
}

// NewS3Store は既定の認証情報チェーンでS3クライアントを生成する。
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{uploader: manager.NewUploader(client), cfg: cfg}, nil
}

// Put はオブジェクトをアップロードし、公開URLを返す。
func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return publicURL(s.cfg, key), nil
}

func publicURL(cfg S3Config, key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(cfg.PublicBaseURL, "/") + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, cfg.Region, escaped)
}

var _ ObjectStore = (*S3Store)(nil)
