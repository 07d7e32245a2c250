package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/me/visium/pkg/model"
)

type imageRef struct {
	ImageID int64 `json:"image_id"`
}

// IssueToken exchanges credentials for a bearer token (POST /token/).
// Failures are returned without notification.
func (c *Client) IssueToken(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/token/",
		body:   map[string]string{"username": username, "password": password},
		quiet:  true,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}
	return resp.AccessToken, nil
}

// Signup registers a new account (POST /signup/). It does not log in.
func (c *Client) Signup(ctx context.Context, username, email, password string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/signup/",
		body:   map[string]string{"username": username, "email": email, "password": password},
		quiet:  true,
	}, nil)
}

// PublicImages lists the public gallery.
func (c *Client) PublicImages(ctx context.Context) ([]model.Image, error) {
	var images []model.Image
	err := c.do(ctx, request{method: http.MethodGet, path: "/get-images/", auth: true}, &images)
	return images, err
}

// MyImages lists the images owned by the current user.
func (c *Client) MyImages(ctx context.Context) ([]model.Image, error) {
	var images []model.Image
	err := c.do(ctx, request{method: http.MethodGet, path: "/get-my-images/", auth: true}, &images)
	return images, err
}

// UploadImage registers an already hosted image.
func (c *Client) UploadImage(ctx context.Context, img model.NewImage) (*model.Image, error) {
	var created model.Image
	if err := c.do(ctx, request{method: http.MethodPost, path: "/images/", body: img, auth: true}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GenerateImage asks the backend to generate an image from a prompt.
func (c *Client) GenerateImage(ctx context.Context, req model.GenerateRequest) (*model.GenerateResult, error) {
	var result model.GenerateResult
	if err := c.do(ctx, request{method: http.MethodPost, path: "/generate-image/", body: req, auth: true}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EditImage uploads an image with an edit prompt and returns the edited image bytes.
func (c *Client) EditImage(ctx context.Context, filename string, file io.Reader, prompt string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}
	if err := mw.WriteField("prompt", prompt); err != nil {
		return nil, fmt.Errorf("write prompt: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	var edited []byte
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/edit-image/",
		raw:         &buf,
		contentType: mw.FormDataContentType(),
		auth:        true,
	}, &edited)
	return edited, err
}

// Like records a like on an image.
func (c *Client) Like(ctx context.Context, imageID int64) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/likes/", body: imageRef{imageID}, auth: true}, nil)
}

// Unlike removes a like. Unliking an image that was never liked returns an
// error for which IsNotLiked is true; it is not reported to the user.
func (c *Client) Unlike(ctx context.Context, imageID int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/likes/", body: imageRef{imageID}, auth: true}, nil)
}

// Comments returns the flat comment list for an image.
func (c *Client) Comments(ctx context.Context, imageID int64) ([]model.Comment, error) {
	var list []model.Comment
	err := c.do(ctx, request{method: http.MethodPost, path: "/comments/image/", body: imageRef{imageID}, auth: true}, &list)
	return list, err
}

// AddComment posts a comment, or a reply when ParentCommentID is set.
func (c *Client) AddComment(ctx context.Context, comment model.NewComment) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/comments/", body: comment, auth: true}, nil)
}

// SearchText searches images by text similarity.
func (c *Client) SearchText(ctx context.Context, query string) ([]model.Image, error) {
	var images []model.Image
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/search/",
		body:   map[string]string{"query": query},
		auth:   true,
	}, &images)
	return images, err
}

// SearchImage searches images similar to the image at imageURL.
func (c *Client) SearchImage(ctx context.Context, imageURL string) ([]model.Image, error) {
	var images []model.Image
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/search-by-image/",
		body:   map[string]string{"image_url": imageURL},
		auth:   true,
	}, &images)
	return images, err
}

// ImageInfo returns a single image.
func (c *Client) ImageInfo(ctx context.Context, imageID int64) (*model.Image, error) {
	var img model.Image
	if err := c.do(ctx, request{method: http.MethodPost, path: "/image-info/", body: imageRef{imageID}, auth: true}, &img); err != nil {
		return nil, err
	}
	return &img, nil
}

// UserImages lists another user's images. No session is required.
func (c *Client) UserImages(ctx context.Context, username string) ([]model.Image, error) {
	var images []model.Image
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/user-images/",
		body:   map[string]string{"username": username},
	}, &images)
	return images, err
}
