package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"go.klb.dev/clipsnap/internal/capture"
	"go.klb.dev/clipsnap/internal/clip"
	"go.klb.dev/clipsnap/internal/config"
	"go.klb.dev/clipsnap/internal/history"
	"go.klb.dev/clipsnap/internal/hub"
	"go.klb.dev/clipsnap/internal/ipc"
	"go.klb.dev/clipsnap/internal/logging"
	"go.klb.dev/clipsnap/internal/monitor"
	"go.klb.dev/clipsnap/internal/screen"
	"go.klb.dev/clipsnap/internal/selection"
	"go.klb.dev/clipsnap/internal/service"
)

func newDaemonCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the capture and clipboard history daemon",
		Long: `Starts the clipsnap daemon for the current desktop session. It polls the
clipboard into the history database, runs region captures on request and
serves the other clipsnap commands over the IPC socket.

Retention settings (history.max_entries, history.retention_days) and
log-level are reloaded when the config file changes.

Config file search order:
  /etc/clipsnap/clipsnap.toml
  $HOME/.config/clipsnap/clipsnap.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPSNAP_* env vars → flags`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindViper(cmd, v); err != nil {
				return err
			}
			if v.GetBool("no-monitor") {
				v.Set("monitor.enabled", false)
			}
			return bindKey(cmd, v, "storage.database_path", "db")
		},
		RunE: func(_ *cobra.Command, _ []string) error { return runDaemon(v) },
	}

	f := cmd.Flags()
	f.String("db", "", "history database path (default ~/.local/share/clipsnap/history.db)")
	f.Bool("no-monitor", false, "serve captures and history without recording clipboard changes")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runDaemon(v *viper.Viper) error {
	setupLogging(v)

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("clipsnap daemon starting",
		"version", Version,
		"config", v.ConfigFileUsed(),
		"db", cfg.Storage.DatabasePath,
		"monitor", cfg.Monitor.Enabled,
	)

	h := hub.New()
	store, err := history.Open(ctx, cfg.Storage.DatabasePath,
		history.WithMaxTextBytes(cfg.History.MaxTextBytes),
		history.WithListener(h.Publish),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	port := clip.New(cfg.Clipboard.Timeout)
	defer port.Close()

	display := screen.New(cfg.Capture.Timeout)
	mon := monitor.New(port, store,
		monitor.WithInterval(cfg.Monitor.Interval),
		monitor.WithThumbnailEdge(cfg.Capture.ThumbnailSize),
	)
	// Everything the daemon itself publishes goes through the monitor so the
	// next poll does not record it a second time.
	tracked := mon.Track(port)

	sel := selection.New(display, selection.NewOverlay(), selection.WithMinSize(cfg.Capture.MinSize))
	orch := capture.New(sel, display, tracked, store,
		capture.WithSettleDelay(cfg.Capture.SettleDelay),
		capture.WithThumbnailEdge(cfg.Capture.ThumbnailSize),
		capture.WithExportPath(cfg.Capture.ExportPath),
	)

	retention := service.NewRetention(retentionOf(cfg))
	owner, _ := port.(clip.Owner)
	svc := service.New(service.Deps{
		Store:         store,
		Capture:       orch,
		Monitor:       mon,
		Clipboard:     tracked,
		Owner:         owner,
		Hub:           h,
		Retention:     retention,
		Version:       Version,
		Database:      cfg.Storage.DatabasePath,
		ClipboardName: port.Name(),
	})

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			next, err := config.Load(v)
			if err != nil {
				slog.Warn("config reload rejected", "file", e.Name, "err", err)
				return
			}
			if lv := v.GetString("log-level"); lv != "" {
				logging.Level.Set(logging.ParseLevel(lv))
			}
			maxAge, maxCount := retentionOf(next)
			retention.Set(maxAge, maxCount)
			slog.Info("retention reloaded", "file", e.Name, "max_age", maxAge, "max_entries", maxCount)
		})
		v.WatchConfig()
	}

	ln, err := ipc.Listen()
	if err != nil {
		return fmt.Errorf("ipc: %w", err)
	}
	slog.Info("IPC socket listening", "path", ipc.SocketPath())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Serve(gctx, ln) })
	if cfg.Monitor.Enabled {
		g.Go(func() error { return mon.Run(gctx) })
	}
	if cfg.History.AutoCleanup {
		g.Go(func() error { return svc.RunMaintenance(gctx, cfg.History.CleanupInterval) })
	}

	err = g.Wait()
	slog.Info("clipsnap daemon stopped")
	return err
}

func retentionOf(cfg config.Config) (maxAge time.Duration, maxCount int) {
	return cfg.History.MaxAge(), cfg.History.MaxEntries
}
