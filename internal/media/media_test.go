package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

type memStore struct {
	objects map[string][]byte
	err     error
	calls   int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if contentType != "image/jpeg" {
		return "", errors.New("unexpected content type " + contentType)
	}
	m.objects[key] = body
	return "https://cdn.example/" + key, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func decodedSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("stored object is not an image: %v", err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func onlyObject(t *testing.T, s *memStore) (string, []byte) {
	t.Helper()
	if len(s.objects) != 1 {
		t.Fatalf("stored %d objects, want 1", len(s.objects))
	}
	for k, v := range s.objects {
		return k, v
	}
	return "", nil
}

func TestImageUploader_Transforms(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		transform    Transform
		wantW, wantH int
	}{
		{"post image is limited", 2400, 1200, PostImage, 1200, 600},
		{"small post image is kept", 300, 200, PostImage, 300, 200},
		{"avatar is filled", 1000, 500, Avatar, 320, 320},
		{"cover is filled", 400, 400, CoverPhoto, 851, 315},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			u := NewImageUploader(store, 10<<20, nil)

			url, err := u.Upload(context.Background(), pngBytes(t, tt.srcW, tt.srcH), "u1/post_images", tt.transform)
			if err != nil {
				t.Fatalf("Upload returned error: %v", err)
			}

			key, data := onlyObject(t, store)
			if !strings.HasPrefix(key, "friendsplace/u1/post_images/") || !strings.HasSuffix(key, ".jpg") {
				t.Errorf("key = %q", key)
			}
			if url != "https://cdn.example/"+key {
				t.Errorf("url = %q", url)
			}
			if w, h := decodedSize(t, data); w != tt.wantW || h != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestImageUploader_RejectsInvalidAndOversized(t *testing.T) {
	store := newMemStore()
	u := NewImageUploader(store, 1024, nil)

	if _, err := u.Upload(context.Background(), []byte("not an image"), "u1", Avatar); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("invalid image error = %v, want ErrInvalidImage", err)
	}
	if _, err := u.Upload(context.Background(), make([]byte, 2048), "u1", Avatar); !errors.Is(err, ErrTooLarge) {
		t.Errorf("oversized error = %v, want ErrTooLarge", err)
	}
	if store.calls != 0 {
		t.Errorf("store called %d times, want 0", store.calls)
	}
}

func TestImageUploader_StoreFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("s3 unavailable")
	u := NewImageUploader(store, 0, nil)

	_, err := u.Upload(context.Background(), pngBytes(t, 10, 10), "u1", Avatar)
	if !errors.Is(err, ErrUpload) {
		t.Errorf("error = %v, want ErrUpload", err)
	}
}

func TestBreakerStore_OpensAfterFailures(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("timeout")
	b := NewBreakerStore(store, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := b.Put(ctx, "k", "image/jpeg", nil); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}
	if store.calls != 2 {
		t.Errorf("store called %d times, want 2", store.calls)
	}
}

func TestDisabledUploader(t *testing.T) {
	_, err := DisabledUploader{}.Upload(context.Background(), nil, "x", Avatar)
	if !errors.Is(err, ErrUpload) {
		t.Errorf("error = %v, want ErrUpload", err)
	}
}

func TestPublicURL(t *testing.T) {
	key := "friendsplace/u 1/a.jpg"

	if got := publicURL(S3Config{Bucket: "b", Region: "ap-northeast-1"}, key); got != "https://b.s3.ap-northeast-1.amazonaws.com/friendsplace/u%201/a.jpg" {
		t.Errorf("default url = %q", got)
	}
	if got := publicURL(S3Config{PublicBaseURL: "https://cdn.example/"}, key); got != "https://cdn.example/friendsplace/u%201/a.jpg" {
		t.Errorf("cdn url = %q", got)
	}
}
