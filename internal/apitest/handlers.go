package apitest

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/me/visium/pkg/model"
)

type imageRef struct {
	ImageID int64 `json:"image_id"`
}

func (b *Backend) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondValidation(w, "body", "invalid JSON")
		return
	}

	b.mu.Lock()
	acct, ok := b.accounts[req.Username]
	b.mu.Unlock()
	if !ok || acct.password != req.Password {
		respondDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"access_token": b.IssueToken(req.Username),
		"token_type":   "bearer",
	})
}

func (b *Backend) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondValidation(w, "body", "invalid JSON")
		return
	}
	if !strings.Contains(req.Email, "@") {
		respondValidation(w, "email", "value is not a valid email address")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for name, acct := range b.accounts {
		if name == req.Username || acct.email == req.Email {
			respondDetail(w, http.StatusBadRequest, "Username or email already exists")
			return
		}
	}
	b.accounts[req.Username] = account{email: req.Email, password: req.Password}
	respondJSON(w, http.StatusOK, map[string]string{"message": "User created successfully"})
}

func (b *Backend) listImages(w http.ResponseWriter, viewer string, keep func(*storedImage) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Image, 0, len(b.images))
	for _, st := range b.images {
		if keep(st) {
			out = append(out, b.viewLocked(st, viewer))
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (b *Backend) handlePublicImages(w http.ResponseWriter, r *http.Request) {
	b.listImages(w, usernameFromContext(r.Context()), func(*storedImage) bool { return true })
}

func (b *Backend) handleMyImages(w http.ResponseWriter, r *http.Request) {
	me := usernameFromContext(r.Context())
	b.listImages(w, me, func(st *storedImage) bool { return st.owner == me })
}

func (b *Backend) handleUserImages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := decodeBody(r, &req); err != nil || req.Username == "" {
		respondValidation(w, "username", "field required")
		return
	}
	b.listImages(w, "", func(st *storedImage) bool { return st.owner == req.Username })
}

func (b *Backend) handleCreateImage(w http.ResponseWriter, r *http.Request) {
	var req model.NewImage
	if err := decodeBody(r, &req); err != nil || req.ImageURL == "" {
		respondValidation(w, "image_url", "field required")
		return
	}
	img := b.AddImage(usernameFromContext(r.Context()), req)
	respondJSON(w, http.StatusOK, img)
}

func (b *Backend) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		respondValidation(w, "prompt", "field required")
		return
	}
	style := req.Style
	if style == "" {
		style = model.StyleVivid
	}
	b.mu.Lock()
	n := b.hits["/generate-image/"]
	b.mu.Unlock()
	respondJSON(w, http.StatusOK, model.GenerateResult{
		URL: fmt.Sprintf("https://images.example/generated/%s-%d.png", style, n),
	})
}

func (b *Backend) handleEdit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		respondValidation(w, "file", "multipart body required")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondValidation(w, "file", "field required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondDetail(w, http.StatusInternalServerError, "read upload")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "edited[%s]:", r.FormValue("prompt"))
	w.Write(data)
}

func (b *Backend) handleLike(w http.ResponseWriter, r *http.Request) {
	b.toggleLike(w, r, true)
}

func (b *Backend) handleUnlike(w http.ResponseWriter, r *http.Request) {
	b.toggleLike(w, r, false)
}

func (b *Backend) toggleLike(w http.ResponseWriter, r *http.Request, like bool) {
	var req imageRef
	if err := decodeBody(r, &req); err != nil {
		respondValidation(w, "image_id", "field required")
		return
	}
	me := usernameFromContext(r.Context())

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.findImageLocked(req.ImageID) == nil {
		respondDetail(w, http.StatusNotFound, "Image not found")
		return
	}
	liked := b.likes[req.ImageID][me]
	switch {
	case like && liked:
		respondDetail(w, http.StatusBadRequest, "You have already liked this post")
	case like:
		if b.likes[req.ImageID] == nil {
			b.likes[req.ImageID] = make(map[string]bool)
		}
		b.likes[req.ImageID][me] = true
		respondJSON(w, http.StatusOK, map[string]string{"message": "Liked"})
	case !liked:
		respondDetail(w, http.StatusBadRequest, model.NotLikedMessage)
	default:
		delete(b.likes[req.ImageID], me)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (b *Backend) handleListComments(w http.ResponseWriter, r *http.Request) {
	var req imageRef
	if err := decodeBody(r, &req); err != nil {
		respondValidation(w, "image_id", "field required")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Comment, 0)
	for _, c := range b.comments {
		if c.imageID == req.ImageID {
			out = append(out, c.Comment)
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (b *Backend) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req model.NewComment
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Content) == "" {
		respondValidation(w, "content", "field required")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.findImageLocked(req.ImageID) == nil {
		respondDetail(w, http.StatusNotFound, "Image not found")
		return
	}
	id := b.addCommentLocked(req.ImageID, usernameFromContext(r.Context()), req.Content, req.ParentCommentID)
	respondJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (b *Backend) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeBody(r, &req); err != nil || req.Query == "" {
		respondValidation(w, "query", "field required")
		return
	}
	q := strings.ToLower(req.Query)
	b.listImages(w, usernameFromContext(r.Context()), func(st *storedImage) bool {
		return strings.Contains(strings.ToLower(st.Description), q)
	})
}

func (b *Backend) handleSearchByImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageURL string `json:"image_url"`
	}
	if err := decodeBody(r, &req); err != nil || req.ImageURL == "" {
		respondValidation(w, "image_url", "field required")
		return
	}
	b.listImages(w, usernameFromContext(r.Context()), func(st *storedImage) bool {
		return st.ImageURL != req.ImageURL
	})
}

func (b *Backend) handleImageInfo(w http.ResponseWriter, r *http.Request) {
	var req imageRef
	if err := decodeBody(r, &req); err != nil {
		respondValidation(w, "image_id", "field required")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.findImageLocked(req.ImageID)
	if st == nil {
		respondDetail(w, http.StatusNotFound, "Image not found")
		return
	}
	respondJSON(w, http.StatusOK, b.viewLocked(st, usernameFromContext(r.Context())))
}
