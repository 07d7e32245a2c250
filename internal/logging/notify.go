package logging

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Variant classifies a notification for display.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a transient, non-blocking message for the user.
type Notification struct {
	Title       string
	Description string
	Variant     Variant
}

// Notifier surfaces notifications to the user. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}

// WriterNotifier prints notifications as single lines and mirrors them to a logger.
type WriterNotifier struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// NewWriterNotifier creates a notifier printing to w.
func NewWriterNotifier(w io.Writer, logger *slog.Logger) *WriterNotifier {
	return &WriterNotifier{w: w, logger: logger.With("component", "notify")}
}

func (n *WriterNotifier) Notify(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	prefix := "*"
	if note.Variant == VariantDestructive {
		prefix = "!"
	}
	if note.Description != "" {
		fmt.Fprintf(n.w, "%s %s: %s\n", prefix, note.Title, note.Description)
	} else {
		fmt.Fprintf(n.w, "%s %s\n", prefix, note.Title)
	}
	n.logger.Debug("notification", "title", note.Title, "variant", string(note.Variant))
}

// Recorder collects notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

// Titles returns the recorded titles in order.
func (r *Recorder) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Title)
	}
	return out
}
