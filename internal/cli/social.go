package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/visium/internal/api"
	"github.com/me/visium/internal/comments"
	"github.com/me/visium/internal/render"
	"github.com/me/visium/internal/session"
	"github.com/me/visium/pkg/model"
)

func newLikeCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "like <id>",
		Short:       "Like an image",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{viewAnnotation: session.PathGallery},
		RunE: func(cmd *cobra.Command, args []string) error {
			return setLike(cmd, args[0], true)
		},
	}
}

func newUnlikeCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "unlike <id>",
		Short:       "Remove your like from an image",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{viewAnnotation: session.PathGallery},
		RunE: func(cmd *cobra.Command, args []string) error {
			return setLike(cmd, args[0], false)
		},
	}
}

// setLike sends the like or unlike and reports the counters as they look
// after the change.
func setLike(cmd *cobra.Command, arg string, liked bool) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	img, err := client.ImageInfo(ctx, id)
	if err != nil {
		return authError(err)
	}

	if liked {
		err = client.Like(ctx, id)
	} else {
		err = client.Unlike(ctx, id)
	}
	switch {
	case api.IsNotLiked(err):
		fmt.Fprintf(out, "You have not liked image %d.\n", id)
		return nil
	case err != nil:
		return authError(err)
	}

	img.ApplyLike(liked)
	verb := "Liked"
	if !liked {
		verb = "Unliked"
	}
	fmt.Fprintf(out, "%s image %d (%d likes)\n", verb, id, img.LikesCount)
	return nil
}

func newCommentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "comments <id>",
		Short:       "Show the comment thread of an image",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{viewAnnotation: session.PathGallery},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			flat, err := client.Comments(cmd.Context(), id)
			if err != nil {
				return authError(err)
			}

			tree := comments.BuildTree(flat)
			if dropped := len(flat) - comments.Count(tree); dropped > 0 {
				logger.Debug("comments hidden", "image_id", id, "count", dropped)
			}
			render.Comments(cmd.OutOrStdout(), tree)
			return nil
		},
	}
}

func newCommentCmd() *cobra.Command {
	var replyTo int64

	cmd := &cobra.Command{
		Use:         "comment <id> <text>",
		Short:       "Comment on an image or reply to a comment",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{viewAnnotation: session.PathGallery},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			text := strings.TrimSpace(args[1])
			if text == "" {
				return fmt.Errorf("comment cannot be empty")
			}

			c := model.NewComment{ImageID: id, Content: text}
			if replyTo > 0 {
				c.ParentCommentID = &replyTo
			}
			if err := client.AddComment(cmd.Context(), c); err != nil {
				return authError(err)
			}
			if replyTo > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Replied to comment %d.\n", replyTo)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Comment added.")
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&replyTo, "reply-to", 0, "Id of the comment to reply to")
	return cmd
}
