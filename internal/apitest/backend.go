// Package apitest runs an in-memory stand-in for the Visium backend for tests.
package apitest

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v4"

	"github.com/me/visium/internal/logging"
	"github.com/me/visium/pkg/model"
)

// Secret signs the tokens issued by the fake backend.
const Secret = "visium-test-secret"

type account struct {
	email    string
	password string
}

type storedImage struct {
	model.Image
	owner string
}

type storedComment struct {
	model.Comment
	imageID int64
}

// Backend is a fake Visium backend.
type Backend struct {
	router chi.Router
	server *httptest.Server
	logger *slog.Logger

	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration

	mu            sync.Mutex
	accounts      map[string]account
	images        []*storedImage
	likes         map[int64]map[string]bool
	comments      []storedComment
	nextImageID   int64
	nextCommentID int64
	hits          map[string]int
	authHeaders   map[string][]string
}

// New starts a fake backend that is shut down when the test ends.
func New(t testing.TB) *Backend {
	t.Helper()
	b := NewBackend(logging.Discard())
	b.server = httptest.NewServer(b.router)
	t.Cleanup(b.server.Close)
	return b
}

// NewBackend creates an unstarted backend; serve it with Handler.
func NewBackend(logger *slog.Logger) *Backend {
	b := &Backend{
		router:        chi.NewRouter(),
		logger:        logger.With("component", "apitest"),
		TokenTTL:      30 * time.Minute,
		accounts:      make(map[string]account),
		likes:         make(map[int64]map[string]bool),
		nextImageID:   1,
		nextCommentID: 1,
		hits:          make(map[string]int),
		authHeaders:   make(map[string][]string),
	}
	b.routes()
	return b
}

// URL returns the base URL of a backend started with New.
func (b *Backend) URL() string {
	return b.server.URL
}

// Handler returns the http.Handler for this backend.
func (b *Backend) Handler() http.Handler {
	return b.router
}

func (b *Backend) routes() {
	r := b.router

	r.Use(middleware.Recoverer)
	r.Use(b.countHits)

	r.Post("/token/", b.handleToken)
	r.Post("/signup/", b.handleSignup)
	r.Post("/user-images/", b.handleUserImages)

	r.Group(func(r chi.Router) {
		r.Use(b.requireToken)

		r.Get("/get-images/", b.handlePublicImages)
		r.Get("/get-my-images/", b.handleMyImages)
		r.Post("/images/", b.handleCreateImage)
		r.Post("/generate-image/", b.handleGenerate)
		r.Post("/edit-image/", b.handleEdit)
		r.Post("/likes/", b.handleLike)
		r.Delete("/likes/", b.handleUnlike)
		r.Post("/comments/image/", b.handleListComments)
		r.Post("/comments/", b.handleCreateComment)
		r.Post("/search/", b.handleSearch)
		r.Post("/search-by-image/", b.handleSearchByImage)
		r.Post("/image-info/", b.handleImageInfo)
	})
}

// AddUser registers an account directly.
func (b *Backend) AddUser(username, email, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[username] = account{email: email, password: password}
}

// AddImage stores an image owned by owner and returns it.
func (b *Backend) AddImage(owner string, img model.NewImage) model.Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addImageLocked(owner, img)
}

func (b *Backend) addImageLocked(owner string, img model.NewImage) model.Image {
	st := &storedImage{
		Image: model.Image{
			ID:            b.nextImageID,
			ImageURL:      img.ImageURL,
			Description:   img.Description,
			IsAIGenerated: img.IsAIGenerated,
		},
		owner: owner,
	}
	b.nextImageID++
	b.images = append(b.images, st)
	return b.viewLocked(st, owner)
}

// AddComment stores a comment directly and returns its id.
func (b *Backend) AddComment(imageID int64, author, content string, parent *int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addCommentLocked(imageID, author, content, parent)
}

func (b *Backend) addCommentLocked(imageID int64, author, content string, parent *int64) int64 {
	id := b.nextCommentID
	b.nextCommentID++
	b.comments = append(b.comments, storedComment{
		Comment: model.Comment{
			ID:              id,
			Content:         content,
			CreatedAt:       time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
			Author:          model.CommentAuthor{Username: author},
			ParentCommentID: parent,
		},
		imageID: imageID,
	})
	return id
}

// LikedBy reports whether username likes imageID.
func (b *Backend) LikedBy(imageID int64, username string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.likes[imageID][username]
}

// Hits returns how many requests reached path.
func (b *Backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// AuthHeaders returns the Authorization headers seen on path, in order.
func (b *Backend) AuthHeaders(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders[path]...)
}

// IssueToken signs a token for username the way /token/ does.
func (b *Backend) IssueToken(username string) string {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(b.TokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(Secret))
	if err != nil {
		panic(err)
	}
	return signed
}

// viewLocked renders a stored image as seen by viewer.
func (b *Backend) viewLocked(st *storedImage, viewer string) model.Image {
	img := st.Image
	img.Username = st.owner
	img.LikesCount = len(b.likes[st.ID])
	img.UserHasLiked = viewer != "" && b.likes[st.ID][viewer]
	return img
}

func (b *Backend) findImageLocked(id int64) *storedImage {
	for _, st := range b.images {
		if st.ID == id {
			return st
		}
	}
	return nil
}
