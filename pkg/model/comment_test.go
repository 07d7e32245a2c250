package model

import (
	"encoding/json"
	"testing"
)

func TestComment_UnmarshalAuthorForms(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"user object", `{"id":1,"content":"hi","user":{"username":"alice"},"parent_comment_id":null}`},
		{"author object", `{"id":1,"content":"hi","author":{"username":"alice"},"parent_comment_id":null}`},
		{"flat username", `{"id":1,"content":"hi","username":"alice","parent_comment_id":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Comment
			if err := json.Unmarshal([]byte(tt.body), &c); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if c.Author.Username != "alice" {
				t.Errorf("expected author alice, got %q", c.Author.Username)
			}
			if c.IsReply() {
				t.Error("expected top-level comment")
			}
		})
	}
}

func TestComment_UnmarshalParent(t *testing.T) {
	var c Comment
	if err := json.Unmarshal([]byte(`{"id":2,"content":"re","user":{"username":"bob"},"parent_comment_id":1}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !c.IsReply() || *c.ParentCommentID != 1 {
		t.Errorf("expected reply to 1, got %+v", c.ParentCommentID)
	}
}

func TestNewComment_EncodesNullParent(t *testing.T) {
	data, err := json.Marshal(NewComment{ImageID: 7, Content: "nice"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"image_id":7,"content":"nice","parent_comment_id":null}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
