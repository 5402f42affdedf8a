// clipsnap: region screenshots and clipboard history.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clipsnap/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "clipsnap",
		Short: "Region screenshots and clipboard history",
		Long: `clipsnap captures a user-selected screen region straight to the clipboard
and keeps a searchable history of everything copied.

Run "clipsnap daemon" once per desktop session. It watches the clipboard,
stores history in SQLite and answers the other commands over a local Unix
socket. Bind "clipsnap capture" to a hotkey to take region screenshots.

Config file search order (first found wins):
  /etc/clipsnap/clipsnap.toml
  $HOME/.config/clipsnap/clipsnap.toml
  path supplied via --config

All settings can be set via CLIPSNAP_<SECTION>_<KEY> env vars, e.g.
CLIPSNAP_HISTORY_MAX_ENTRIES=500.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newDaemonCmd(),
		newCaptureCmd(),
		newCancelCmd(),
		newRecentCmd(),
		newSearchCmd(),
		newShowCmd(),
		newRestoreCmd(),
		newDeleteCmd(),
		newClearCmd(),
		newCleanupCmd(),
		newWatchCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("clipsnap %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed. An
// explicit level wins; otherwise interactive runs log at debug.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	level := slog.LevelInfo
	switch {
	case levelStr != "":
		level = logging.ParseLevel(levelStr)
	case interactive:
		level = slog.LevelDebug
	}
	logging.Setup(logging.ParseFormat(formatStr), level)
}
