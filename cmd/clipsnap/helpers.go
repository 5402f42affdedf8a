package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipsnap/internal/codec"
	"go.klb.dev/clipsnap/internal/history"
	"go.klb.dev/clipsnap/internal/ipc"
	"go.klb.dev/clipsnap/internal/message"
)

// callTimeout bounds non-interactive requests to the daemon.
const callTimeout = 10 * time.Second

// previewWidth is the number of runes of text shown per table row.
const previewWidth = 60

// clientCmd builds a daemon client command with the shared --json and
// --config flags.
func clientCmd(use, short string, args cobra.PositionalArgs, run func(*cobra.Command, *viper.Viper, []string) error) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Args:    args,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, a []string) error { return run(cmd, v, a) },
	}
	cmd.Flags().Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)
	return cmd
}

// call sends req to the daemon and waits at most timeout for the reply. A
// zero timeout waits until the daemon answers.
func call(req *message.Message, timeout time.Duration) (*message.Message, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := ipc.Call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.ToLower(string(req.Type)), err)
	}
	return resp, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEntries(entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Println("No entries.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\tKIND\tCREATED\tSIZE\tCONTENT\n")
	_, _ = fmt.Fprintf(tw, "--\t----\t-------\t----\t-------\n")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			e.ID, e.Kind, fmtAge(e.CreatedAt), fmtSize(e.ByteSize), describe(e))
	}
	_ = tw.Flush()
}

// describe renders the content column: a one-line text excerpt, or the
// dimensions of an image.
func describe(e history.Entry) string {
	if e.Kind == history.KindText {
		return oneLine(e.Text, previewWidth)
	}
	if w, h, err := codec.DecodeConfig(e.Preview); err == nil {
		return fmt.Sprintf("[image, preview %dx%d]", w, h)
	}
	return "[image]"
}

func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	n := 0
	for i := range s {
		if n == width {
			return s[:i] + "…"
		}
		n++
	}
	return s
}

func fmtSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

func fmtAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	if age < 24*time.Hour {
		return t.Format("15:04:05")
	}
	return t.Format("2006-01-02 15:04")
}
