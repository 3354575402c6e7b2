package services

import (
	"os"
	"path/filepath"
	"time"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keySyncMaxItems        = "sync.max_items"
	keySyncDelaySeconds    = "sync.delay_seconds"
	keySyncMaxRetries      = "sync.max_retries"
	keySyncRetryBackoff    = "sync.retry_backoff_seconds"
	keyReconcileShare      = "reconcile.share_budget"
	keyWatchInbox          = "watch.inbox"
	keyWatchDebounce       = "watch.debounce_seconds"
	keySchedulerEnabled    = "scheduler.enabled"
	keySchedulerTargets    = "scheduler.targets"
	keySchedulerSyncMins   = "scheduler.sync_interval_minutes"
	keySchedulerRecoMins   = "scheduler.reconcile_interval_minutes"
	keyNotionToken         = "notion.token"
	keyNotionDatabaseID    = "notion.database_id"
	keyNotionTodoDatabase  = "notion.todo_database_id"
	keyReadwiseToken       = "readwise.token"
	envNotionToken         = "NOTION_TOKEN"
	envReadwiseToken       = "READWISE_TOKEN"
	defaultInboxDirName    = "inbox"
	defaultSyncIntervalMin = 60
	defaultRecoIntervalMin = 1440
)

// LoadSettings resolves settings from the config store over the built-in
// defaults. Tokens fall back to the NOTION_TOKEN and READWISE_TOKEN
// environment variables when the config file has none.
func LoadSettings(cfg driven.ConfigStore, dataRoot string) domain.Settings {
	return loadSettings(cfg, dataRoot, os.Getenv)
}

func loadSettings(cfg driven.ConfigStore, dataRoot string, getenv func(string) string) domain.Settings {
	s := domain.DefaultSettings()
	r := settingsReader{cfg: cfg}

	s.Sync.MaxItems = r.positiveInt(keySyncMaxItems, s.Sync.MaxItems)
	if secs, ok := r.nonNegativeFloat(keySyncDelaySeconds); ok {
		s.Sync.Delay = seconds(secs)
	}
	s.Sync.Retry.MaxRetries = r.positiveInt(keySyncMaxRetries, 0)
	if secs, ok := r.nonNegativeFloat(keySyncRetryBackoff); ok {
		s.Sync.Retry.Backoff = seconds(secs)
	}
	s.Sync.Retry.MaxBackoff = domain.DefaultMaxRetryBackoff

	s.Reconcile.ShareBudget = r.boolOr(keyReconcileShare, s.Reconcile.ShareBudget)

	s.Watch.Inbox = cfg.GetString(keyWatchInbox)
	if s.Watch.Inbox == "" && dataRoot != "" {
		s.Watch.Inbox = filepath.Join(dataRoot, defaultInboxDirName)
	}
	if secs, ok := r.nonNegativeFloat(keyWatchDebounce); ok {
		s.Watch.Debounce = seconds(secs)
	}

	s.Scheduler.Enabled = r.boolOr(keySchedulerEnabled, false)
	s.Scheduler.Targets = cfg.GetStringSlice(keySchedulerTargets)
	s.Scheduler.TaskConfigs[domain.TaskIDTargetSync] = domain.TaskConfig{
		Enabled:  true,
		Interval: time.Duration(r.positiveInt(keySchedulerSyncMins, defaultSyncIntervalMin)) * time.Minute,
	}
	s.Scheduler.TaskConfigs[domain.TaskIDGapReconcile] = domain.TaskConfig{
		Enabled:  true,
		Interval: time.Duration(r.positiveInt(keySchedulerRecoMins, defaultRecoIntervalMin)) * time.Minute,
	}

	s.Notion = domain.NotionSettings{
		Token:          r.stringOr(keyNotionToken, getenv(envNotionToken)),
		DatabaseID:     cfg.GetString(keyNotionDatabaseID),
		TodoDatabaseID: cfg.GetString(keyNotionTodoDatabase),
	}
	s.Readwise = domain.ReadwiseSettings{
		Token: r.stringOr(keyReadwiseToken, getenv(envReadwiseToken)),
	}

	return s
}

// settingsReader applies defaults over a config store.
type settingsReader struct {
	cfg driven.ConfigStore
}

func (r settingsReader) positiveInt(key string, def int) int {
	if v := r.cfg.GetInt(key); v > 0 {
		return v
	}
	return def
}

func (r settingsReader) nonNegativeFloat(key string) (float64, bool) {
	if _, ok := r.cfg.Get(key); !ok {
		return 0, false
	}
	v := r.cfg.GetFloat(key)
	return v, v >= 0
}

func (r settingsReader) boolOr(key string, def bool) bool {
	if v, ok := r.cfg.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func (r settingsReader) stringOr(key, def string) string {
	if v := r.cfg.GetString(key); v != "" {
		return v
	}
	return def
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
