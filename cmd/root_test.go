package cmd

import (
	"bytes"
	"testing"

	"github.com/partscatalog/imagecache/internal/buildinfo"
	"github.com/partscatalog/imagecache/internal/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := RootCommand(&conf.Settings{}, buildinfo.NewContext("1.0.0", "", ""))

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"resolve", "preload", "serve", "version"})

	for flag := range flagKeys {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCommand_VersionSkipsConfig(t *testing.T) {
	settings := &conf.Settings{}
	root := RootCommand(settings, buildinfo.NewContext("1.0.0", "2026-10-01", "abc"))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--config", "/does/not/exist.yaml"})
	require.NoError(t, root.ExecuteContext(t.Context()))

	assert.Equal(t, "partsimg 1.0.0 (commit abc, built 2026-10-01)\n", out.String())
	assert.Empty(t, settings.OCI.Backend, "settings are not loaded for version")
}
