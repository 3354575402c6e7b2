package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/rmsync/internal/adapters/driving/mcp"
	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// withBootstrap installs fn for the test and returns the captured options.
func withBootstrap(t *testing.T, fn BootstrapFunc) *[]Options {
	t.Helper()
	withServices(t, Services{})

	var calls []Options
	SetBootstrap(func(opts Options) (*Services, func() error, error) {
		calls = append(calls, opts)
		return fn(opts)
	})
	return &calls
}

func TestExecute_BootstrapsAndCloses(t *testing.T) {
	closed := false
	mock := &mockSyncService{stats: &domain.LedgerStats{Total: 3}}
	calls := withBootstrap(t, func(Options) (*Services, func() error, error) {
		return &Services{Sync: mock}, func() error { closed = true; return nil }, nil
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status", "--data-dir", "/tmp/rm", "--config-dir", "/tmp/cfg"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})

	require.NoError(t, Execute(context.Background()))
	require.Len(t, *calls, 1)
	assert.Equal(t, Options{DataDir: "/tmp/rm", ConfigDir: "/tmp/cfg"}, (*calls)[0])
	assert.True(t, closed)
	assert.Nil(t, closeFn)
	assert.Contains(t, buf.String(), "Records: 3")
}

func TestExecute_BootstrapError(t *testing.T) {
	withBootstrap(t, func(Options) (*Services, func() error, error) {
		return nil, nil, errBoom
	})

	_, err := execute(t, "status")
	assert.ErrorIs(t, err, errBoom)
}

func TestExecute_StandaloneSkipsBootstrap(t *testing.T) {
	calls := withBootstrap(t, func(Options) (*Services, func() error, error) {
		return nil, nil, errBoom
	})

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rmsync version")
	assert.Empty(t, *calls)
}

func TestMCPServeCmd_RequiresSync(t *testing.T) {
	withServices(t, Services{})

	_, err := execute(t, "mcp", "serve")
	assert.ErrorIs(t, err, mcp.ErrMissingSyncService)
}
