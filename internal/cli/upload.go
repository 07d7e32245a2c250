package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/visium/internal/config"
	"github.com/me/visium/internal/upload"
	"github.com/me/visium/pkg/model"
)

// fileUploader stores a local file and returns its public URL.
type fileUploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

// newUploader builds the object storage uploader. Tests replace it.
var newUploader = func(ctx context.Context, c config.UploadConfig, l *slog.Logger) (fileUploader, error) {
	return upload.New(ctx, c, l)
}

func newUploadCmd() *cobra.Command {
	var (
		imageURL    string
		file        string
		description string
		ai          bool
	)

	cmd := &cobra.Command{
		Use:         "upload",
		Short:       "Publish an image by URL or from a local file",
		Long:        "Publish an image. Local files are first stored in the configured object storage bucket.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{viewAnnotation: "/upload"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if file != "" {
				u, err := newUploader(ctx, cfg.Upload, logger)
				if err != nil {
					return fmt.Errorf("upload %s: %w", file, err)
				}
				if imageURL, err = u.UploadFile(ctx, file); err != nil {
					return err
				}
				if description == "" {
					description = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
				}
			}
			if strings.TrimSpace(imageURL) == "" {
				return fmt.Errorf("image URL cannot be empty")
			}

			img, err := client.UploadImage(ctx, model.NewImage{
				ImageURL:      imageURL,
				Description:   description,
				IsAIGenerated: ai,
			})
			if err != nil {
				return authError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded image %d: %s\n", img.ID, img.ImageURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&imageURL, "url", "", "URL of an image already online")
	cmd.Flags().StringVar(&file, "file", "", "Local image file to store and publish")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Image description")
	cmd.Flags().BoolVar(&ai, "ai", false, "Mark the image as AI-generated")
	cmd.MarkFlagsMutuallyExclusive("url", "file")
	cmd.MarkFlagsOneRequired("url", "file")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		prompt      string
		style       string
		save        bool
		description string
	)

	cmd := &cobra.Command{
		Use:         "generate",
		Short:       "Generate an image from a prompt",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{viewAnnotation: "/generate"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("prompt cannot be empty")
			}
			if !model.IsValidStyle(style) {
				return fmt.Errorf("unknown style %q (valid: %s)", style, strings.Join(model.Styles, ", "))
			}

			ctx := cmd.Context()
			result, err := client.GenerateImage(ctx, model.GenerateRequest{Prompt: prompt, Style: style})
			if err != nil {
				return authError(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated: %s\n", result.URL)

			if !save {
				return nil
			}
			if description == "" {
				description = prompt
			}
			img, err := client.UploadImage(ctx, model.NewImage{
				ImageURL:      result.URL,
				Description:   description,
				IsAIGenerated: true,
			})
			if err != nil {
				return authError(err)
			}
			fmt.Fprintf(out, "Saved as image %d\n", img.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "What to generate")
	cmd.Flags().StringVar(&style, "style", model.StyleVivid, "Style: "+strings.Join(model.Styles, ", "))
	cmd.Flags().BoolVar(&save, "save", false, "Publish the generated image to the gallery")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description when saving (defaults to the prompt)")
	return cmd
}

func newEditCmd() *cobra.Command {
	var file, prompt, outPath string

	cmd := &cobra.Command{
		Use:         "edit",
		Short:       "Edit a local image with a prompt",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{viewAnnotation: "/generate/edit"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" || strings.TrimSpace(prompt) == "" || outPath == "" {
				return fmt.Errorf("--file, --prompt and --out are required")
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			defer f.Close()

			data, err := client.EditImage(cmd.Context(), filepath.Base(file), f, prompt)
			if err != nil {
				return authError(err)
			}
			if err := os.WriteFile(outPath, data, 0644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(data), outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Image to edit")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Edit instructions")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Where to write the edited image")
	return cmd
}
