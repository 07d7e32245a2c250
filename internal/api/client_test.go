package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/visium/internal/apitest"
	"github.com/me/visium/internal/logging"
	"github.com/me/visium/pkg/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setup returns a backend with one user and a client logged in as that user.
func setup(t *testing.T) (*apitest.Backend, *Client, *logging.Recorder) {
	t.Helper()
	backend := apitest.New(t)
	backend.AddUser("alice", "alice@example.com", "secret")
	notes := &logging.Recorder{}
	c := NewClient(backend.URL(), quietLogger(),
		WithNotifier(notes),
		WithTokenSource(StaticToken(backend.IssueToken("alice"))),
	)
	return backend, c, notes
}

type recorderFunc func(endpoint string, status int, elapsed time.Duration)

func (f recorderFunc) ObserveRequest(endpoint string, status int, elapsed time.Duration) {
	f(endpoint, status, elapsed)
}

func TestIssueToken(t *testing.T) {
	backend, c, notes := setup(t)
	ctx := context.Background()

	token, err := c.IssueToken(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("expected a JWT, got %q", token)
	}

	_, err = c.IssueToken(ctx, "alice", "wrong")
	if StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
	if len(notes.Notifications()) != 0 {
		t.Errorf("token failures must not be notified, got %v", notes.Titles())
	}
	if h := backend.AuthHeaders("/token/"); len(h) != 2 || h[0] != "" {
		t.Errorf("token endpoint must not receive credentials header, got %q", h)
	}
}

func TestSignup(t *testing.T) {
	_, c, notes := setup(t)
	ctx := context.Background()

	if err := c.Signup(ctx, "bob", "bob@example.com", "pw"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	err := c.Signup(ctx, "bob", "bob2@example.com", "pw")
	if err == nil || err.Error() != "Username or email already exists" {
		t.Errorf("expected duplicate error, got %v", err)
	}
	if len(notes.Notifications()) != 0 {
		t.Errorf("signup failures must not be notified, got %v", notes.Titles())
	}
}

func TestAuthRequiredAbortsBeforeSend(t *testing.T) {
	backend := apitest.New(t)
	notes := &logging.Recorder{}
	c := NewClient(backend.URL(), quietLogger(), WithNotifier(notes))

	_, err := c.PublicImages(context.Background())
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if backend.Hits("/get-images/") != 0 {
		t.Error("request must not be sent without a token")
	}

	c.SetTokenSource(TokenFunc(func() (string, error) { return "", errors.New("logged out") }))
	if _, err := c.MyImages(context.Background()); !errors.Is(err, ErrAuthRequired) {
		t.Errorf("expected ErrAuthRequired from failing token source, got %v", err)
	}
	if len(notes.Notifications()) != 0 {
		t.Errorf("missing credentials must not be notified, got %v", notes.Titles())
	}
}

func TestBearerHeader(t *testing.T) {
	backend, c, _ := setup(t)
	if _, err := c.PublicImages(context.Background()); err != nil {
		t.Fatalf("PublicImages: %v", err)
	}
	h := backend.AuthHeaders("/get-images/")
	if len(h) != 1 || !strings.HasPrefix(h[0], "Bearer ey") {
		t.Errorf("expected bearer JWT, got %q", h)
	}
}

func TestImagesLifecycle(t *testing.T) {
	backend, c, _ := setup(t)
	ctx := context.Background()
	backend.AddImage("carol", model.NewImage{ImageURL: "https://img/1.png", Description: "A red fox"})

	created, err := c.UploadImage(ctx, model.NewImage{ImageURL: "https://img/2.png", Description: "Blue lake", IsAIGenerated: true})
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if created.ID != 2 || created.Username != "alice" || !created.IsAIGenerated {
		t.Errorf("unexpected created image: %+v", created)
	}

	public, err := c.PublicImages(ctx)
	if err != nil || len(public) != 2 {
		t.Fatalf("PublicImages = %d images, err %v", len(public), err)
	}
	mine, err := c.MyImages(ctx)
	if err != nil || len(mine) != 1 || mine[0].ID != 2 {
		t.Fatalf("MyImages = %+v, err %v", mine, err)
	}

	info, err := c.ImageInfo(ctx, 1)
	if err != nil || info.Description != "A red fox" {
		t.Fatalf("ImageInfo = %+v, err %v", info, err)
	}

	carols, err := NewClient(backend.URL(), quietLogger()).UserImages(ctx, "carol")
	if err != nil || len(carols) != 1 {
		t.Fatalf("UserImages without session = %+v, err %v", carols, err)
	}
}

func TestLikeUnlike_NotLikedIsQuiet(t *testing.T) {
	backend, c, notes := setup(t)
	ctx := context.Background()
	img := backend.AddImage("carol", model.NewImage{ImageURL: "https://img/1.png"})

	if err := c.Like(ctx, img.ID); err != nil {
		t.Fatalf("Like: %v", err)
	}
	if !backend.LikedBy(img.ID, "alice") {
		t.Error("expected like to be recorded")
	}
	if err := c.Unlike(ctx, img.ID); err != nil {
		t.Fatalf("Unlike: %v", err)
	}

	err := c.Unlike(ctx, img.ID)
	if !IsNotLiked(err) {
		t.Fatalf("expected not-liked error, got %v", err)
	}
	if len(notes.Notifications()) != 0 {
		t.Errorf("not-liked must not be notified, got %v", notes.Titles())
	}

	// A different failure is notified.
	err = c.Like(ctx, 999)
	if StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	got := notes.Notifications()
	if len(got) != 1 || got[0].Title != "Error" || got[0].Description != "Image not found" || got[0].Variant != logging.VariantDestructive {
		t.Errorf("unexpected notifications: %+v", got)
	}
}

func TestComments(t *testing.T) {
	backend, c, _ := setup(t)
	ctx := context.Background()
	img := backend.AddImage("carol", model.NewImage{ImageURL: "https://img/1.png"})

	if err := c.AddComment(ctx, model.NewComment{ImageID: img.ID, Content: "first"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	parent := int64(1)
	if err := c.AddComment(ctx, model.NewComment{ImageID: img.ID, Content: "reply", ParentCommentID: &parent}); err != nil {
		t.Fatalf("AddComment reply: %v", err)
	}

	list, err := c.Comments(ctx, img.ID)
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(list))
	}
	if list[0].Author.Username != "alice" || list[0].IsReply() {
		t.Errorf("unexpected first comment: %+v", list[0])
	}
	if !list[1].IsReply() || *list[1].ParentCommentID != 1 {
		t.Errorf("unexpected reply: %+v", list[1])
	}
}

func TestSearch(t *testing.T) {
	backend, c, _ := setup(t)
	ctx := context.Background()
	backend.AddImage("carol", model.NewImage{ImageURL: "https://img/1.png", Description: "Sunset over sea"})
	backend.AddImage("carol", model.NewImage{ImageURL: "https://img/2.png", Description: "Mountain"})

	found, err := c.SearchText(ctx, "sunset")
	if err != nil || len(found) != 1 || found[0].ID != 1 {
		t.Fatalf("SearchText = %+v, err %v", found, err)
	}
	similar, err := c.SearchImage(ctx, "https://img/1.png")
	if err != nil || len(similar) != 1 || similar[0].ID != 2 {
		t.Fatalf("SearchImage = %+v, err %v", similar, err)
	}
}

func TestGenerateAndEdit(t *testing.T) {
	_, c, notes := setup(t)
	ctx := context.Background()

	res, err := c.GenerateImage(ctx, model.GenerateRequest{Prompt: "a cat", Style: model.StyleAnime})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if !strings.Contains(res.URL, "anime") {
		t.Errorf("unexpected URL %q", res.URL)
	}

	_, err = c.GenerateImage(ctx, model.GenerateRequest{Prompt: " "})
	if StatusCode(err) != http.StatusUnprocessableEntity || err.Error() != "field required" {
		t.Errorf("expected validation error, got %v", err)
	}
	if titles := notes.Titles(); len(titles) != 1 || titles[0] != "Error" {
		t.Errorf("expected one error notification, got %v", titles)
	}

	edited, err := c.EditImage(ctx, "cat.png", strings.NewReader("PNGDATA"), "add a hat")
	if err != nil {
		t.Fatalf("EditImage: %v", err)
	}
	if string(edited) != "edited[add a hat]:PNGDATA" {
		t.Errorf("unexpected edited bytes %q", edited)
	}
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"Image not found"}`, "Image not found"},
		{"validation list", `{"detail":[{"msg":"a"},{"msg":"b"}]}`, "a; b"},
		{"no detail", `{"error":"x"}`, "Request failed with status 500"},
		{"not json", `<html>oops</html>`, "Request failed with status 500"},
		{"odd detail", `{"detail":{"x":1}}`, "Request failed with status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeError(500, []byte(tt.body))
			if err.Error() != tt.want {
				t.Errorf("got %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func TestNoContentAndMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var observed []int
	c := NewClient(srv.URL, quietLogger(),
		WithTokenSource(StaticToken("t")),
		WithMetrics(recorderFunc(func(endpoint string, status int, _ time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			if endpoint == "/likes/" {
				observed = append(observed, status)
			}
		})),
	)
	if err := c.Unlike(context.Background(), 1); err != nil {
		t.Fatalf("Unlike: %v", err)
	}
	if len(observed) != 1 || observed[0] != http.StatusNoContent {
		t.Errorf("observed = %v", observed)
	}
}

func TestNetworkErrorNotified(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	notes := &logging.Recorder{}
	c := NewClient(url, quietLogger(), WithNotifier(notes), WithTimeout(time.Second))
	if _, err := c.UserImages(context.Background(), "alice"); err == nil {
		t.Fatal("expected network error")
	}
	if titles := notes.Titles(); len(titles) != 1 || titles[0] != "Error" {
		t.Errorf("expected error notification, got %v", titles)
	}
}

func TestRateLimit(t *testing.T) {
	backend, _, _ := setup(t)
	c := NewClient(backend.URL(), quietLogger(), WithRateLimit(20, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.UserImages(context.Background(), "nobody"); err != nil {
			t.Fatalf("UserImages: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected rate limiting to space requests, took %v", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.UserImages(ctx, "nobody"); err == nil {
		t.Error("expected error with cancelled context")
	}
}

func TestWithTimeoutCopiesHTTPClient(t *testing.T) {
	shared := &http.Client{}
	c := NewClient("http://localhost", quietLogger(),
		WithHTTPClient(shared),
		WithTimeout(5*time.Second),
	)
	if shared.Timeout != 0 {
		t.Errorf("expected shared client untouched, got timeout %v", shared.Timeout)
	}
	if c.HTTPClient == shared || c.HTTPClient.Timeout != 5*time.Second {
		t.Errorf("expected a copy with 5s timeout, got %+v", c.HTTPClient)
	}

	c = NewClient("http://localhost", quietLogger(),
		WithHTTPClient(nil),
		WithTimeout(time.Second),
	)
	if c.HTTPClient == nil || c.HTTPClient.Timeout != time.Second {
		t.Errorf("expected a fresh client with 1s timeout, got %+v", c.HTTPClient)
	}
}
