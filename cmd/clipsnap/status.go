package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipsnap/internal/ipc"
	"go.klb.dev/clipsnap/internal/message"
)

func newStatusCmd() *cobra.Command {
	cmd := clientCmd("status", "Show daemon and history status", cobra.NoArgs, runStatus)
	cmd.Long = `Displays the running daemon's version, database, clipboard backend,
monitor activity and history statistics. Exits non-zero when no daemon is
running.`
	return cmd
}

func runStatus(_ *cobra.Command, v *viper.Viper, _ []string) error {
	resp, err := call(&message.Message{Type: message.TypeStatus}, callTimeout)
	if err != nil {
		return err
	}
	st := resp.Status
	if st == nil {
		return fmt.Errorf("status: empty reply")
	}
	if v.GetBool("json") {
		return printJSON(st)
	}
	printStatus(st)
	return nil
}

func printStatus(st *message.Status) {
	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Daemon:\t%s\n", st.Version)
	fmt.Fprintf(w, "Socket:\t%s\n", ipc.SocketPath())
	fmt.Fprintf(w, "Database:\t%s\n", st.Database)
	if st.ClipboardOwned {
		fmt.Fprintf(w, "Clipboard:\t%s (holding our content)\n", st.Clipboard)
	} else {
		fmt.Fprintf(w, "Clipboard:\t%s\n", st.Clipboard)
	}
	fmt.Fprintf(w, "Watchers:\t%d\n", st.Watchers)
	if st.CaptureActive {
		fmt.Fprintf(w, "Capture:\tselection in progress\n")
	}
	fmt.Fprintln(w)

	m := st.Monitor
	if m.Running {
		fmt.Fprintf(w, "Monitor:\trunning\n")
	} else {
		fmt.Fprintf(w, "Monitor:\tstopped\n")
	}
	if !m.LastTick.IsZero() {
		fmt.Fprintf(w, "Last poll:\t%s (%s)\n", m.LastTick.UTC().Format(time.RFC3339), fmtAge(m.LastTick))
	}
	fmt.Fprintf(w, "Polls:\t%d (%d skipped, %d failed)\n", m.Ticks, m.Skipped, m.Failures)
	fmt.Fprintf(w, "Recorded:\t%d\n", m.Added)
	fmt.Fprintln(w)

	s := st.Store
	fmt.Fprintf(w, "Entries:\t%d text, %d image\n", s.Text, s.Image)
	fmt.Fprintf(w, "Size:\t%s\n", fmtSize(s.Bytes))
	if !s.Oldest.IsZero() {
		fmt.Fprintf(w, "Oldest:\t%s\n", s.Oldest.Local().Format(time.DateTime))
		fmt.Fprintf(w, "Newest:\t%s (%s)\n", s.Newest.Local().Format(time.DateTime), fmtAge(s.Newest))
	}
	_ = w.Flush()
}
