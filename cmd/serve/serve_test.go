package serve

import (
	"context"
	"testing"
	"time"

	"github.com/partscatalog/imagecache/internal/conf"
	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() *conf.Settings {
	return &conf.Settings{
		OCI: conf.OCISettings{
			Backend:  conf.BackendHTTP,
			BaseURL:  "https://oci.test",
			ReadPath: conf.DefaultReadPath,
			Timeout:  time.Second,
		},
		Images: conf.ImageSettings{FallbackRef: conf.DefaultFallbackRef},
		Server: conf.ServerSettings{
			Listen:          "127.0.0.1:0",
			ShutdownTimeout: time.Second,
		},
		Preload: conf.PreloadSettings{BatchSize: 3},
	}
}

func TestCommand_ListenFlagBoundToConfig(t *testing.T) {
	cmd := Command(testSettings())

	flag := cmd.Flags().Lookup("listen")
	require.NotNil(t, flag)
	assert.Equal(t, "l", flag.Shorthand)
	assert.Equal(t, conf.DefaultListenAddress, flag.DefValue)

	require.NoError(t, cmd.Flags().Set("listen", "127.0.0.1:9911"))
	assert.Equal(t, "127.0.0.1:9911", viper.GetString("server.listen"))
}

func TestCommand_RunsUntilContextDone(t *testing.T) {
	cmd := Command(testSettings())
	cmd.SetArgs([]string{})

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after context cancellation")
	}
}

func TestCommand_InvalidBackend(t *testing.T) {
	settings := testSettings()
	settings.OCI.Backend = "ftp"

	cmd := Command(settings)
	cmd.SetArgs([]string{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.ExecuteContext(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestCommand_RejectsArgs(t *testing.T) {
	cmd := Command(testSettings())
	cmd.SetArgs([]string{"extra"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	require.Error(t, cmd.ExecuteContext(t.Context()))
}
