package model

import "encoding/json"

// CommentAuthor identifies who wrote a comment.
type CommentAuthor struct {
	Username string `json:"username"`
}

// Comment is a single comment on an image. Replies is a derived view built
// from the flat list and is only populated on top-level comments.
type Comment struct {
	ID              int64         `json:"id"`
	Content         string        `json:"content"`
	CreatedAt       string        `json:"created_at"`
	Author          CommentAuthor `json:"user"`
	ParentCommentID *int64        `json:"parent_comment_id"`
	Replies         []Comment     `json:"replies,omitempty"`
}

// IsReply reports whether the comment answers another comment.
func (c *Comment) IsReply() bool {
	return c.ParentCommentID != nil
}

// UnmarshalJSON accepts the author as "user", "author" or a flat "username".
func (c *Comment) UnmarshalJSON(data []byte) error {
	type plain Comment
	var aux struct {
		plain
		AltAuthor *CommentAuthor `json:"author"`
		Username  string         `json:"username"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Comment(aux.plain)
	if c.Author.Username == "" && aux.AltAuthor != nil {
		c.Author = *aux.AltAuthor
	}
	if c.Author.Username == "" {
		c.Author.Username = aux.Username
	}
	return nil
}

// NewComment is the body of POST /comments/.
type NewComment struct {
	ImageID         int64  `json:"image_id"`
	Content         string `json:"content"`
	ParentCommentID *int64 `json:"parent_comment_id"`
}
