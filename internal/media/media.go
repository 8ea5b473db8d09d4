// Package media は画像アップロード（リサイズ、JPEG再エンコード、S3保存）を提供する。
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/hitoshi/friendsplace/internal/metrics"
)

var (
	// ErrInvalidImage は画像としてデコードできない入力を表す。
	ErrInvalidImage = errors.New("invalid image")
	// ErrTooLarge はアップロードサイズ上限を超えた入力を表す。
	ErrTooLarge = errors.New("image too large")
	// ErrUpload はストレージへの保存に失敗したことを表す。
	ErrUpload = errors.New("image upload failed")
)

// rootFolder は全オブジェクトキーの先頭に付くフォルダ。
const rootFolder = "friendsplace"

const jpegQuality = 85

// Mode は画像のリサイズ方法。
type Mode int

const (
	// ModeFit はアスペクト比を保って枠内に収める。枠より小さい画像は拡大しない。
	ModeFit Mode = iota
	// ModeFill は中央を基準に切り抜いて枠をちょうど埋める。
	ModeFill
)

// Transform はアップロード時に適用する変換。
type Transform struct {
	Mode   Mode
	Width  int
	Height int
}

// 用途別の変換
var (
	PostImage    = Transform{Mode: ModeFit, Width: 1200, Height: 1200}
	CommentImage = Transform{Mode: ModeFit, Width: 1200, Height: 1200}
	Avatar       = Transform{Mode: ModeFill, Width: 320, Height: 320}
	CoverPhoto   = Transform{Mode: ModeFill, Width: 851, Height: 315}
)

// Uploader は画像を変換して保存し、公開URLを返すインターフェース。
type Uploader interface {
	Upload(ctx context.Context, data []byte, folder string, t Transform) (string, error)
}

// ObjectStore はオブジェクトを保存し、その公開URLを返すストレージ。
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// ImageUploader は画像を変換してObjectStoreに保存するUploader。
type ImageUploader struct {
	store   ObjectStore
	maxSize int64
	metrics metrics.MetricsCollector
}

// NewImageUploader はImageUploaderを生成する。maxSizeは入力バイト数の上限。
func NewImageUploader(store ObjectStore, maxSize int64, m metrics.MetricsCollector) *ImageUploader {
	if m == nil {
		m = metrics.Nop{}
	}
	return &ImageUploader{store: store, maxSize: maxSize, metrics: m}
}

// Upload は画像をデコードし、tに従ってリサイズしてJPEGで保存する。
// キーは friendsplace/<folder>/<uuid>.jpg。
func (u *ImageUploader) Upload(ctx context.Context, data []byte, folder string, t Transform) (string, error) {
	if u.maxSize > 0 && int64(len(data)) > u.maxSize {
		return "", ErrTooLarge
	}

	encoded, err := transform(data, t)
	if err != nil {
		return "", err
	}

	key := path.Join(rootFolder, folder, uuid.NewString()+".jpg")
	url, err := u.store.Put(ctx, key, "image/jpeg", encoded)
	if err != nil {
		u.metrics.RecordDependencyFailure("media")
		slog.ErrorContext(ctx, "image upload failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return url, nil
}

func transform(data []byte, t Transform) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	switch t.Mode {
	case ModeFill:
		img = imaging.Fill(img, t.Width, t.Height, imaging.Center, imaging.Lanczos)
	default:
		b := img.Bounds()
		if b.Dx() > t.Width || b.Dy() > t.Height {
			img = imaging.Fit(img, t.Width, t.Height, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DisabledUploader はストレージ未設定時のUploader。常にErrUploadを返す。
type DisabledUploader struct{}

func (DisabledUploader) Upload(context.Context, []byte, string, Transform) (string, error) {
	return "", fmt.Errorf("%w: storage is not configured", ErrUpload)
}

var (
	_ Uploader = (*ImageUploader)(nil)
	_ Uploader = DisabledUploader{}
)
