// Package comments assembles flat comment lists into the two-level view
// shown under an image.
package comments

import (
	"slices"

	"github.com/me/visium/pkg/model"
)

// BuildTree partitions flat into top-level comments and replies and attaches
// each root's replies in input order. Replies whose parent is not a root
// (orphans and deeper chains) are dropped. The input is not modified.
//
// BuildTree must be applied to the flat list as returned by the backend,
// never to its own output.
func BuildTree(flat []model.Comment) []model.Comment {
	roots := make([]model.Comment, 0, len(flat))
	children := make(map[int64][]model.Comment)

	for _, c := range flat {
		if c.ParentCommentID == nil {
			roots = append(roots, c)
			continue
		}
		reply := c
		reply.Replies = nil
		children[*c.ParentCommentID] = append(children[*c.ParentCommentID], reply)
	}

	for i := range roots {
		roots[i].Replies = slices.Clone(children[roots[i].ID])
	}
	return roots
}

// Count returns the number of comments displayed by a tree.
func Count(tree []model.Comment) int {
	n := len(tree)
	for _, c := range tree {
		n += len(c.Replies)
	}
	return n
}
