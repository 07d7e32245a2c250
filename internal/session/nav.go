package session

import (
	"strings"
	"sync"
)

// Views the session manager navigates to.
const (
	PathHome    = "/"
	PathLogin   = "/auth/login"
	PathGallery = "/gallery"
)

// DefaultProtectedPaths are the views that require a session.
var DefaultProtectedPaths = []string{"/my-gallery", "/upload", "/generate"}

// Navigator tracks the active view and moves between views.
type Navigator interface {
	Path() string
	Navigate(path string)
}

// IsProtected reports whether path falls under one of the protected prefixes.
func IsProtected(path string, protected []string) bool {
	for _, p := range protected {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Router is an in-memory Navigator that keeps a history of visited views.
type Router struct {
	mu         sync.Mutex
	path       string
	history    []string
	onNavigate func(path string)
}

// NewRouter creates a Router positioned at start.
func NewRouter(start string) *Router {
	if start == "" {
		start = PathHome
	}
	return &Router{path: start, history: []string{start}}
}

// OnNavigate registers fn to be called after every navigation.
func (r *Router) OnNavigate(fn func(path string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onNavigate = fn
}

func (r *Router) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *Router) Navigate(path string) {
	r.mu.Lock()
	r.path = path
	r.history = append(r.history, path)
	fn := r.onNavigate
	r.mu.Unlock()

	if fn != nil {
		fn(path)
	}
}

// History returns every view visited, starting with the initial one.
func (r *Router) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history...)
}
