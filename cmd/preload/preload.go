package preload

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/partscatalog/imagecache/internal/app"
	"github.com/partscatalog/imagecache/internal/conf"
	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/imageprovider"
	"github.com/spf13/cobra"
)

// Command creates the preload command, which warms the cache from a YAML request list.
func Command(settings *conf.Settings) *cobra.Command {
	var batchSize int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "preload <requests.yaml>",
		Short: "Resolve a list of images in bounded waves",
		Long: `Resolve a list of images in sequential waves. Use - to read the list
from standard input. The batch size is taken from --batch-size, then from the
file, then from preload.batch_size.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, fileBatch, err := readRequests(cmd, args[0])
			if err != nil {
				return err
			}

			a, err := app.New(settings)
			if err != nil {
				return err
			}
			defer a.Close()

			size := a.BatchSize(fileBatch)
			if batchSize > 0 {
				size = batchSize
			}

			summary := a.Preloader.Preload(cmd.Context(), reqs, size)
			if err := printSummary(cmd.OutOrStdout(), summary, asJSON); err != nil {
				return err
			}
			if cmd.Context().Err() != nil {
				return errors.New(cmd.Context().Err()).
					Component("cmd.preload").
					Category(errors.CategoryCancellation).
					Context("completed", summary.Total-unscheduled(summary)).
					Build()
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Images resolved concurrently per wave")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func readRequests(cmd *cobra.Command, path string) ([]imageprovider.Request, int, error) {
	if path == "-" {
		return imageprovider.LoadRequests(cmd.InOrStdin())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.New(err).
			Component("cmd.preload").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()
	return imageprovider.LoadRequests(f)
}

func unscheduled(s imageprovider.Summary) int {
	n := 0
	for _, r := range s.Results {
		if r.Wave < 0 {
			n++
		}
	}
	return n
}

func printSummary(out io.Writer, s imageprovider.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WAVE\tKEY\tSTATE\tREF\tPATH")
	for _, r := range s.Results {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.Wave, r.Key, r.State, r.Ref, r.Path)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%d requests, %d resolved, %d fell back, waves %v in %s\n",
		s.Total, s.Succeeded, s.Failed, s.Waves, s.Duration.Round(time.Millisecond))
	return err
}
