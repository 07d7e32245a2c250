// Package render prints images and comment threads for the terminal.
// Everything that originates from other users passes through Clean first.
package render

import (
	"fmt"
	"html"
	"io"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/me/visium/pkg/model"
)

const descriptionWidth = 50

var policy = bluemonday.StrictPolicy()

// Clean strips markup and terminal control characters from user content.
func Clean(s string) string {
	s = html.UnescapeString(policy.Sanitize(s))
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Images prints a table of images.
func Images(w io.Writer, images []model.Image) {
	if len(images) == 0 {
		fmt.Fprintln(w, "No images found.")
		return
	}

	fmt.Fprintf(w, "%-6s  %-5s  %-3s  %-16s  %s\n", "ID", "LIKES", "AI", "USER", "DESCRIPTION")
	fmt.Fprintf(w, "%-6s  %-5s  %-3s  %-16s  %s\n", "--", "-----", "--", "----", "-----------")
	for _, img := range images {
		likes := fmt.Sprintf("%d", img.LikesCount)
		if img.UserHasLiked {
			likes += "*"
		}
		ai := "no"
		if img.IsAIGenerated {
			ai = "yes"
		}
		user := Clean(img.Username)
		if user == "" {
			user = "-"
		}
		fmt.Fprintf(w, "%-6d  %-5s  %-3s  %-16s  %s\n",
			img.ID, likes, ai, Truncate(user, 16), Truncate(oneLine(Clean(img.Description)), descriptionWidth))
	}
}

// Image prints the full record of one image.
func Image(w io.Writer, img model.Image) {
	fmt.Fprintf(w, "Image:       %d\n", img.ID)
	fmt.Fprintf(w, "URL:         %s\n", Clean(img.ImageURL))
	if img.Username != "" {
		fmt.Fprintf(w, "Owner:       %s\n", Clean(img.Username))
	}
	fmt.Fprintf(w, "AI:          %t\n", img.IsAIGenerated)
	fmt.Fprintf(w, "Likes:       %d", img.LikesCount)
	if img.UserHasLiked {
		fmt.Fprint(w, " (liked)")
	}
	fmt.Fprintln(w)
	if d := Clean(img.Description); d != "" {
		fmt.Fprintf(w, "Description: %s\n", d)
	}
}

// Comments prints a comment tree: roots in order, each followed by its
// replies indented one level.
func Comments(w io.Writer, tree []model.Comment) {
	if len(tree) == 0 {
		fmt.Fprintln(w, "No comments yet.")
		return
	}
	for _, root := range tree {
		writeComment(w, root, "")
		for _, reply := range root.Replies {
			writeComment(w, reply, "    ")
		}
	}
}

func writeComment(w io.Writer, c model.Comment, indent string) {
	author := Clean(c.Author.Username)
	if author == "" {
		author = "anonymous"
	}
	fmt.Fprintf(w, "%s#%d %s", indent, c.ID, author)
	if c.CreatedAt != "" {
		fmt.Fprintf(w, " (%s)", c.CreatedAt)
	}
	fmt.Fprintln(w)
	for _, line := range strings.Split(Clean(c.Content), "\n") {
		fmt.Fprintf(w, "%s  %s\n", indent, line)
	}
}
