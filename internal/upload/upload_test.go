package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/me/visium/internal/config"
)

var _ Putter = (*manager.Uploader)(nil)

// pngHeader is the PNG signature followed by an IHDR chunk start.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &manager.UploadOutput{
		Location: "https://bucket.s3.amazonaws.com/" + aws.ToString(in.Key),
	}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestUploader(p Putter, cfg config.UploadConfig) *Uploader {
	u := NewWithPutter(p, cfg, quietLogger())
	u.newID = func() string { return "fixed-id" }
	return u
}

func TestUploadFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "Sunset.PNG")
	content := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 2048)...)
	if err := os.WriteFile(file, content, 0644); err != nil {
		t.Fatal(err)
	}

	p := &fakePutter{}
	u := newTestUploader(p, config.UploadConfig{Bucket: "images", Prefix: "uploads/"})

	url, err := u.UploadFile(context.Background(), file)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if url != "https://bucket.s3.amazonaws.com/uploads/fixed-id.png" {
		t.Errorf("unexpected url: %s", url)
	}
	if aws.ToString(p.input.Bucket) != "images" {
		t.Errorf("expected bucket images, got %s", aws.ToString(p.input.Bucket))
	}
	if aws.ToString(p.input.ContentType) != "image/png" {
		t.Errorf("expected image/png, got %s", aws.ToString(p.input.ContentType))
	}
	if !bytes.Equal(p.body, content) {
		t.Errorf("expected %d bytes uploaded, got %d", len(content), len(p.body))
	}
}

func TestUploadPublicBaseURL(t *testing.T) {
	p := &fakePutter{}
	u := newTestUploader(p, config.UploadConfig{
		Bucket:        "images",
		Prefix:        "u",
		PublicBaseURL: "https://cdn.example/",
	})

	url, err := u.Upload(context.Background(), "cat.jpg", bytes.NewReader([]byte("\xff\xd8\xff\xe0")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://cdn.example/u/fixed-id.jpg" {
		t.Errorf("unexpected url: %s", url)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	p := &fakePutter{}
	u := newTestUploader(p, config.UploadConfig{Bucket: "images"})

	_, err := u.Upload(context.Background(), "notes.txt", bytes.NewReader([]byte("hello")))
	if !errors.Is(err, ErrNotImage) {
		t.Errorf("expected ErrNotImage, got %v", err)
	}
	if p.input != nil {
		t.Error("expected nothing to be uploaded")
	}
}

func TestUploadPutterError(t *testing.T) {
	p := &fakePutter{err: errors.New("access denied")}
	u := newTestUploader(p, config.UploadConfig{Bucket: "images"})

	if _, err := u.Upload(context.Background(), "a.png", bytes.NewReader(pngHeader)); err == nil {
		t.Error("expected error")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), config.UploadConfig{}, quietLogger()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDetectContentTypeSniffs(t *testing.T) {
	ct, err := DetectContentType("upload", pngHeader)
	if err != nil || ct != "image/png" {
		t.Errorf("expected image/png, got %q (%v)", ct, err)
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"uploads/", "a.PNG", "uploads/id.png"},
		{"", "b.jpeg", "id.jpeg"},
		{"x/y", "noext", "x/y/id"},
	}
	for _, tt := range tests {
		if got := ObjectKey(tt.prefix, tt.name, "id"); got != tt.want {
			t.Errorf("ObjectKey(%q, %q): expected %q, got %q", tt.prefix, tt.name, tt.want, got)
		}
	}
}

func TestPublicURL(t *testing.T) {
	if got := PublicURL("https://cdn.example/", "/k.png"); got != "https://cdn.example/k.png" {
		t.Errorf("unexpected url: %s", got)
	}
}
