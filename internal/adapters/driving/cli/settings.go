package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// settingKeys are the config keys `settings set` accepts.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
var settingKeys = map[string]string{
	"sync.max_items":                       "items sent per run",
	"sync.delay_seconds":                   "wait between target calls",
	"sync.max_retries":                     "failures before an item is skipped (0 = unlimited)",
	"sync.retry_backoff_seconds":           "first retry delay, doubled per failure (0 = none)",
	"reconcile.share_budget":               "listing calls count against max_items",
	"watch.inbox":                          "directory watched for bundles",
	"watch.debounce_seconds":               "quiet period before import",
	"scheduler.enabled":                    "run the scheduler",
	"scheduler.targets":                    "comma-separated targets for scheduled runs",
	"scheduler.sync_interval_minutes":      "minutes between scheduled syncs",
	"scheduler.reconcile_interval_minutes": "minutes between gap reconciliations",
	"notion.token":                         "Notion integration token",
	"notion.database_id":                   "Notion database for notebooks",
	"notion.todo_database_id":              "Notion database for todos",
	"readwise.token":                       "Readwise access token",
}

// tokenKeys maps a target to its token key.
var tokenKeys = map[string]string{
	"notion":   "notion.token",
	"readwise": "readwise.token",
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change rmsync settings stored in config.toml.

Tokens may also come from the NOTION_TOKEN and READWISE_TOKEN environment
variables or a .env file next to config.toml.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Long:  "Set a config value. Known keys:\n\n" + describeKeys(),
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsSet,
}

var settingsTokenCmd = &cobra.Command{
	Use:       "token <notion|readwise>",
	Short:     "Store a target token",
	Long:      `Prompts for a target token without echoing it and stores it in config.toml.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"notion", "readwise"},
	RunE:      runSettingsToken,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsTokenCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	s := settings

	cmd.Println("Current Settings")
	cmd.Println("================")
	if configStore != nil {
		cmd.Printf("Config file: %s\n", configStore.Path())
	}
	cmd.Println()

	cmd.Println("[Sync]")
	cmd.Printf("  Max items: %d\n", s.Sync.MaxItems)
	cmd.Printf("  Delay: %s\n", s.Sync.Delay)
	if s.Sync.Retry.MaxRetries > 0 {
		cmd.Printf("  Max retries: %d\n", s.Sync.Retry.MaxRetries)
	} else {
		cmd.Println("  Max retries: unlimited")
	}
	cmd.Printf("  Retry backoff: %s\n", s.Sync.Retry.Backoff)
	cmd.Printf("  Reconcile shares budget: %t\n", s.Reconcile.ShareBudget)
	cmd.Println()

	cmd.Println("[Watch]")
	cmd.Printf("  Inbox: %s\n", s.Watch.Inbox)
	cmd.Printf("  Debounce: %s\n", s.Watch.Debounce)
	cmd.Println()

	cmd.Println("[Scheduler]")
	cmd.Printf("  Enabled: %t\n", s.Scheduler.Enabled)
	cmd.Printf("  Sync interval: %s\n", s.Scheduler.GetTaskConfig(domain.TaskIDTargetSync).Interval)
	cmd.Printf("  Reconcile interval: %s\n", s.Scheduler.GetTaskConfig(domain.TaskIDGapReconcile).Interval)
	if len(s.Scheduler.Targets) > 0 {
		cmd.Printf("  Targets: %s\n", strings.Join(s.Scheduler.Targets, ", "))
	}
	cmd.Println()

	cmd.Println("[Notion]")
	cmd.Printf("  Token: %s\n", maskToken(s.Notion.Token))
	cmd.Printf("  Database: %s\n", orNotSet(s.Notion.DatabaseID))
	cmd.Printf("  Todo database: %s\n", orNotSet(s.Notion.TodoDatabaseID))
	cmd.Printf("  Status: %s\n", configuredStatus(s.Notion.Configured()))
	cmd.Println()

	cmd.Println("[Readwise]")
	cmd.Printf("  Token: %s\n", maskToken(s.Readwise.Token))
	cmd.Printf("  Status: %s\n", configuredStatus(s.Readwise.Configured()))

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	key, raw := args[0], args[1]
	if _, ok := settingKeys[key]; !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	if err := configStore.Set(key, parseValue(key, raw)); err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}

	if isTokenKey(key) {
		raw = maskToken(raw)
	}
	cmd.Printf("Set %s = %s\n", key, raw)
	return nil
}

func runSettingsToken(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	key, ok := tokenKeys[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown target %q", domain.ErrInvalidInput, args[0])
	}

	cmd.Printf("Enter %s token: ", args[0])
	token := readPassword(cmd.InOrStdin())
	cmd.Println()
	if token == "" {
		return fmt.Errorf("%w: empty token", domain.ErrInvalidInput)
	}

	if err := configStore.Set(key, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	cmd.Printf("Saved %s token %s\n", args[0], maskToken(token))
	return nil
}

// parseValue converts a command-line value to the type stored in TOML.
func parseValue(key, raw string) any {
	if key == "scheduler.targets" {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	if isTokenKey(key) {
		return raw
	}
	if raw == "true" || raw == "false" {
		return raw == "true"
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func isTokenKey(key string) bool {
	for _, k := range tokenKeys {
		if k == key {
			return true
		}
	}
	return false
}

func describeKeys() string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "  %-38s %s\n", k, settingKeys[k])
	}
	return b.String()
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword(in io.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	reader := bufio.NewReader(in)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func configuredStatus(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
