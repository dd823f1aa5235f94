package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/partscatalog/imagecache/internal/app"
	"github.com/partscatalog/imagecache/internal/conf"
	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/imageprovider"
	"github.com/spf13/cobra"
)

const outputFilePermissions = 0o644

type options struct {
	makeName string
	fallback string
	output   string
	timeout  time.Duration
	asJSON   bool
}

// Result is what the resolve command reports.
type Result struct {
	State       imageprovider.State `json:"state"`
	Key         imageprovider.Key   `json:"key"`
	Ref         string              `json:"ref"`
	Path        string              `json:"path,omitempty"`
	ContentType string              `json:"content_type,omitempty"`
	Size        int                 `json:"size,omitempty"`
	Fallback    string              `json:"fallback"`
	Output      string              `json:"output,omitempty"`
}

// Command creates the resolve command, which looks up one image.
func Command(settings *conf.Settings) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "resolve <folder> <name>",
		Short: "Resolve one catalog image",
		Long: `Resolve one catalog image by folder and display name, trying every
naming variant the object store may hold. Models are translated through the
catalog service first and need --make.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(settings)
			if err != nil {
				return err
			}
			defer a.Close()

			folder, _ := imageprovider.ParseFolder(args[0])
			key := imageprovider.Key{Folder: folder, Name: args[1], AuxName: opts.makeName}

			res, err := run(cmd.Context(), a, key, opts)
			if err != nil {
				return err
			}
			return printResult(cmd, res, opts.asJSON)
		},
	}

	setupFlags(cmd, &opts)
	return cmd
}

func setupFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.makeName, "make", "m", "", "Make of a model image")
	cmd.Flags().StringVar(&opts.fallback, "fallback", "", "Fallback reference reported when nothing is found")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the image to this file")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "Give up waiting after this long")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the result as JSON")
}

func run(ctx context.Context, a *app.App, key imageprovider.Key, opts options) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	fallback := opts.fallback
	if fallback == "" {
		fallback = a.Settings.Images.FallbackRef
	}

	ctrl := imageprovider.NewController(a.Resolver, key, imageprovider.WithFallback(fallback))
	ctrl.Load(ctx)
	snap := ctrl.Wait(ctx)
	ctrl.Detach()

	if !snap.State.Terminal() {
		return Result{}, errors.New(ctx.Err()).
			Component("cmd.resolve").
			Category(errors.CategoryCancellation).
			Context("key", key.String()).
			Build()
	}

	res := Result{
		State:    snap.State,
		Key:      snap.Key,
		Ref:      snap.Ref(),
		Fallback: snap.Fallback,
	}
	if snap.Handle == nil {
		return res, nil
	}

	res.Path = snap.Handle.Path
	res.ContentType = snap.Handle.ContentType
	res.Size = len(snap.Handle.Bytes())
	if opts.output != "" {
		if err := os.WriteFile(opts.output, snap.Handle.Bytes(), outputFilePermissions); err != nil {
			return res, errors.New(err).
				Component("cmd.resolve").
				Category(errors.CategoryFileIO).
				Context("path", opts.output).
				Build()
		}
		res.Output = opts.output
	}
	return res, nil
}

func printResult(cmd *cobra.Command, res Result, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if res.State != imageprovider.StateResolved {
		_, err := fmt.Fprintf(out, "%s: not found, using %s\n", res.Key, res.Ref)
		return err
	}
	_, err := fmt.Fprintf(out, "%s: %s (%s, %d bytes) %s\n", res.Key, res.Path, res.ContentType, res.Size, res.Ref)
	if err == nil && res.Output != "" {
		_, err = fmt.Fprintf(out, "written to %s\n", res.Output)
	}
	return err
}
