package logging

import (
	"bytes"
	"reflect"
	"testing"
)

func TestWriterNotifier(t *testing.T) {
	var out bytes.Buffer
	n := NewWriterNotifier(&out, Discard())

	n.Notify(Notification{Title: "Login successful", Description: "Welcome back, alice!"})
	n.Notify(Notification{Title: "Session expired", Variant: VariantDestructive})

	want := "* Login successful: Welcome back, alice!\n! Session expired\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Notify(Notification{Title: "a"})
	r.Notify(Notification{Title: "b", Variant: VariantDestructive})

	if got := r.Titles(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Titles() = %v", got)
	}
	notes := r.Notifications()
	notes[0].Title = "mutated"
	if r.Titles()[0] != "a" {
		t.Error("Notifications() must return a copy")
	}
}
