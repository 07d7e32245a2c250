package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/visium/internal/filter"
	"github.com/me/visium/internal/render"
	"github.com/me/visium/internal/session"
	"github.com/me/visium/pkg/model"
)

func newGalleryCmd() *cobra.Command {
	var (
		mine   bool
		aiOnly bool
		nonAI  bool
		query  string
		expr   string
	)

	cmd := &cobra.Command{
		Use:         "gallery",
		Short:       "List images",
		Long:        "List everyone's images, or your own with --mine. Without --ai or --non-ai the list is split into AI-generated and uploaded images.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{viewAnnotation: session.PathGallery},
		RunE: func(cmd *cobra.Command, args []string) error {
			if mine {
				router.Navigate("/my-gallery")
			}

			var (
				images []model.Image
				err    error
			)
			if mine {
				images, err = client.MyImages(cmd.Context())
			} else {
				images, err = client.PublicImages(cmd.Context())
			}
			if err != nil {
				return authError(err)
			}

			criteria := filter.Criteria{Query: query, Expr: expr}
			switch {
			case aiOnly:
				criteria.Kind = filter.KindAI
			case nonAI:
				criteria.Kind = filter.KindNonAI
			}
			images, err = filter.Apply(images, criteria)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if criteria.Kind != filter.KindAll {
				render.Images(out, images)
				return nil
			}
			ai, other := filter.SplitAI(images)
			fmt.Fprintf(out, "AI generated (%d)\n", len(ai))
			render.Images(out, ai)
			fmt.Fprintf(out, "\nUploaded (%d)\n", len(other))
			render.Images(out, other)
			return nil
		},
	}

	cmd.Flags().BoolVar(&mine, "mine", false, "Only your own images")
	cmd.Flags().BoolVar(&aiOnly, "ai", false, "Only AI-generated images")
	cmd.Flags().BoolVar(&nonAI, "non-ai", false, "Only uploaded images")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Match descriptions containing this text")
	cmd.Flags().StringVar(&expr, "filter", "", "JavaScript predicate over img, e.g. 'img.likes_count > 3'")
	cmd.MarkFlagsMutuallyExclusive("ai", "non-ai")
	return cmd
}

func newImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "image <id>",
		Short:       "Show one image",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{viewAnnotation: session.PathGallery},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			img, err := client.ImageInfo(cmd.Context(), id)
			if err != nil {
				return authError(err)
			}
			render.Image(cmd.OutOrStdout(), *img)
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	var imageURL string

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search images by description or by a similar image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			}
			if (text == "") == (imageURL == "") {
				return fmt.Errorf("give either search text or --image-url")
			}

			var (
				images []model.Image
				err    error
			)
			if text != "" {
				images, err = client.SearchText(cmd.Context(), text)
			} else {
				images, err = client.SearchImage(cmd.Context(), imageURL)
			}
			if err != nil {
				return authError(err)
			}
			render.Images(cmd.OutOrStdout(), images)
			return nil
		},
	}

	cmd.Flags().StringVar(&imageURL, "image-url", "", "Find images similar to this one")
	return cmd
}

func newUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user <username>",
		Short: "List a user's images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return fmt.Errorf("username cannot be empty")
			}
			images, err := client.UserImages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Images by %s (%d)\n", render.Clean(args[0]), len(images))
			render.Images(cmd.OutOrStdout(), images)
			return nil
		},
	}
}
