package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/rmsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driving"
	"github.com/custodia-labs/rmsync/internal/logger"
)

func TestWatchCmd_ImportsAndSyncs(t *testing.T) {
	inbox := t.TempDir()
	writeTestBundle(t, inbox, "journal.json")

	store := memory.NewContentStore()
	mock := &mockSyncService{
		targets: []string{"notion"},
		run:     &driving.RunResult{Queued: 2, Report: domain.DispatchReport{Synced: 2}},
	}
	withServices(t, Services{Sync: mock, Content: store})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	out, err := executeContext(t, ctx, "watch", "--inbox", inbox, "--debounce", "10ms", "--sync")
	require.NoError(t, err)

	assert.Contains(t, out, "Watching "+inbox)
	assert.Contains(t, out, "Imported nb-1")
	assert.Contains(t, out, "Sync → notion")
	require.NotEmpty(t, mock.runCalls)
	assert.Equal(t, "notion", mock.runCalls[0].Target)

	nb, err := store.GetNotebook(context.Background(), "nb-1")
	require.NoError(t, err)
	assert.Equal(t, "Journal", nb.Name)
}

func TestWatchCmd_UsesSettingsInbox(t *testing.T) {
	s := domain.DefaultSettings()
	s.Watch.Inbox = filepath.Join(t.TempDir(), "inbox")
	s.Watch.Debounce = 20 * time.Millisecond
	withServices(t, Services{Content: memory.NewContentStore(), Settings: s})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	out, err := executeContext(t, ctx, "watch")
	require.NoError(t, err)
	assert.Contains(t, out, "Watching "+s.Watch.Inbox+" (debounce 20ms)")
	assert.DirExists(t, s.Watch.Inbox)
}

func TestWatchCmd_LogFile(t *testing.T) {
	defer logger.SetVerbose(false)
	logPath := filepath.Join(t.TempDir(), "rmsync.log")
	withServices(t, Services{Content: memory.NewContentStore()})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := executeContext(t, ctx, "watch", "-v", "--inbox", t.TempDir(), "--log-file", logPath)
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "logging to "+logPath)
	assert.Contains(t, string(data), "watching")
}

func TestWatchCmd_Validation(t *testing.T) {
	withServices(t, Services{})
	_, err := execute(t, "watch", "--inbox", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content store not configured")

	withServices(t, Services{Content: memory.NewContentStore()})
	_, err = execute(t, "watch", "--inbox", t.TempDir(), "--sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync service not configured")

	_, err = execute(t, "watch")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
