package serve

import (
	"github.com/partscatalog/imagecache/internal/app"
	"github.com/partscatalog/imagecache/internal/conf"
	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/httpserver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Command creates the serve command, which runs the image HTTP API.
func Command(settings *conf.Settings) *cobra.Command {
	var flagErr error
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the image API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagErr != nil {
				return flagErr
			}
			a, err := app.New(settings)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []httpserver.Option{
				httpserver.WithMetrics(a.Metrics),
				httpserver.WithPreloader(a.Preloader),
			}
			if a.ObjectURL != nil {
				opts = append(opts, httpserver.WithObjectURL(a.ObjectURL))
			}

			srv, err := httpserver.New(httpserver.Config{
				Listen:          settings.Server.Listen,
				ShutdownTimeout: settings.Server.ShutdownTimeout,
				FallbackRef:     settings.Images.FallbackRef,
				BatchSize:       a.BatchSize(0),
			}, a.Resolver, a.Cache, opts...)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	flagErr = setupFlags(cmd)
	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().StringP("listen", "l", conf.DefaultListenAddress, "Address to listen on")
	if err := viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen")); err != nil {
		return errors.Newf("error binding flag listen: %w", err).
			Component("cmd").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
