// Package upload stores local image files in S3-compatible object storage and
// returns the URL to register with the backend.
package upload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/me/visium/internal/config"
)

// ErrNotConfigured is returned when no bucket is configured.
var ErrNotConfigured = errors.New("upload bucket not configured")

// ErrNotImage is returned for files that are not images.
var ErrNotImage = errors.New("file is not an image")

// Putter sends an object to storage. *manager.Uploader satisfies it.
type Putter interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Uploader puts image files under a key prefix in one bucket.
type Uploader struct {
	putter     Putter
	bucket     string
	prefix     string
	publicBase string
	logger     *slog.Logger
	newID      func() string
}

// New builds an Uploader on the default AWS credential chain.
func New(ctx context.Context, cfg config.UploadConfig, logger *slog.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithPutter(manager.NewUploader(client), cfg, logger), nil
}

// NewWithPutter builds an Uploader on an existing Putter.
func NewWithPutter(p Putter, cfg config.UploadConfig, logger *slog.Logger) *Uploader {
	return &Uploader{
		putter:     p,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		publicBase: cfg.PublicBaseURL,
		logger:     logger.With("component", "upload"),
		newID:      uuid.NewString,
	}
}

// UploadFile stores the image at path and returns its public URL.
func (u *Uploader) UploadFile(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	return u.Upload(ctx, filepath.Base(filePath), f)
}

// Upload stores an image read from r. name supplies the extension.
func (u *Uploader) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	contentType, err := DetectContentType(name, head)
	if err != nil {
		return "", err
	}

	key := ObjectKey(u.prefix, name, u.newID())
	u.logger.Debug("uploading", "bucket", u.bucket, "key", key, "content_type", contentType)

	out, err := u.putter.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        br,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	url := out.Location
	if u.publicBase != "" {
		url = PublicURL(u.publicBase, key)
	}
	u.logger.Info("uploaded", "key", key, "url", url)
	return url, nil
}

// DetectContentType picks the MIME type from the extension, falling back to
// sniffing head. Only image types are accepted.
func DetectContentType(name string, head []byte) (string, error) {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ct == "" {
		ct = http.DetectContentType(head)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("%s (%s): %w", name, ct, ErrNotImage)
	}
	return ct, nil
}

// ObjectKey builds the storage key for a file: prefix, a unique id and the
// lower-cased original extension.
func ObjectKey(prefix, name, id string) string {
	return path.Join(prefix, id+strings.ToLower(filepath.Ext(name)))
}

// PublicURL joins a public base URL and an object key.
func PublicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
