package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipsnap/internal/history"
	"go.klb.dev/clipsnap/internal/logging"
	"go.klb.dev/clipsnap/internal/message"
)

func newRecentCmd() *cobra.Command {
	cmd := clientCmd("recent", "List the most recent history entries", cobra.NoArgs, runRecent)
	cmd.Flags().IntP("limit", "n", 20, "maximum number of entries (0 = all)")
	return cmd
}

func runRecent(_ *cobra.Command, v *viper.Viper, _ []string) error {
	resp, err := call(&message.Message{Type: message.TypeRecent, Limit: v.GetInt("limit")}, callTimeout)
	if err != nil {
		return err
	}
	return listEntries(v, resp.Entries)
}

func newSearchCmd() *cobra.Command {
	cmd := clientCmd("search QUERY...", "Search text entries (case-insensitive substring)", cobra.MinimumNArgs(1), runSearch)
	cmd.Flags().IntP("limit", "n", 20, "maximum number of entries (0 = all)")
	return cmd
}

func runSearch(_ *cobra.Command, v *viper.Viper, args []string) error {
	resp, err := call(&message.Message{
		Type:  message.TypeSearch,
		Query: strings.Join(args, " "),
		Limit: v.GetInt("limit"),
	}, callTimeout)
	if err != nil {
		return err
	}
	return listEntries(v, resp.Entries)
}

func listEntries(v *viper.Viper, entries []history.Entry) error {
	if v.GetBool("json") {
		if entries == nil {
			entries = []history.Entry{}
		}
		return printJSON(entries)
	}
	printEntries(entries)
	return nil
}

func newShowCmd() *cobra.Command {
	cmd := clientCmd("show ID", "Print one entry: text to stdout, images as PNG", cobra.ExactArgs(1), runShow)
	cmd.Long = `Prints the full content of a history entry. Text is written to stdout.
Images are written to --out, or to stdout when it is not a terminal:

  clipsnap show 42 > capture.png`
	cmd.Flags().StringP("out", "o", "", "write the payload to this file")
	return cmd
}

func runShow(_ *cobra.Command, v *viper.Viper, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	resp, err := call(&message.Message{Type: message.TypeGet, ID: id}, callTimeout)
	if err != nil {
		return err
	}
	e := resp.Entry
	if e == nil {
		return fmt.Errorf("get: empty reply")
	}
	if v.GetBool("json") {
		return printJSON(e)
	}

	payload := []byte(e.Text)
	if e.Kind == history.KindImage {
		payload = e.Image
	}
	if out := v.GetString("out"); out != "" {
		return os.WriteFile(out, payload, 0o644)
	}
	if e.Kind == history.KindImage && logging.IsTTY(os.Stdout) {
		return errors.New("refusing to write a PNG to the terminal; use --out or redirect stdout")
	}
	_, err = os.Stdout.Write(payload)
	if err == nil && e.Kind == history.KindText && logging.IsTTY(os.Stdout) && !strings.HasSuffix(e.Text, "\n") {
		_, err = io.WriteString(os.Stdout, "\n")
	}
	return err
}

func newRestoreCmd() *cobra.Command {
	return clientCmd("restore ID", "Put a history entry back on the clipboard", cobra.ExactArgs(1), runRestore)
}

func runRestore(_ *cobra.Command, v *viper.Viper, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	resp, err := call(&message.Message{Type: message.TypeRestore, ID: id}, callTimeout)
	if err != nil {
		return err
	}
	if v.GetBool("json") {
		return printJSON(resp.Entry)
	}
	fmt.Printf("Restored entry %d (%s)\n", id, resp.Entry.Kind)
	return nil
}

func newDeleteCmd() *cobra.Command {
	return clientCmd("delete ID...", "Delete history entries", cobra.MinimumNArgs(1), runDelete)
}

func runDelete(_ *cobra.Command, _ *viper.Viper, args []string) error {
	ids := make([]int64, len(args))
	for i, a := range args {
		id, err := parseID(a)
		if err != nil {
			return err
		}
		ids[i] = id
	}
	for _, id := range ids {
		if _, err := call(&message.Message{Type: message.TypeDelete, ID: id}, callTimeout); err != nil {
			return err
		}
	}
	return nil
}

func newClearCmd() *cobra.Command {
	cmd := clientCmd("clear", "Delete all history entries", cobra.NoArgs, runClear)
	cmd.Flags().String("kind", "", "only clear entries of this kind: text|image")
	return cmd
}

func runClear(_ *cobra.Command, v *viper.Viper, _ []string) error {
	var kind history.Kind
	if s := v.GetString("kind"); s != "" {
		k, err := history.ParseKind(s)
		if err != nil {
			return err
		}
		kind = k
	}
	resp, err := call(&message.Message{Type: message.TypeClear, Kind: kind}, callTimeout)
	if err != nil {
		return err
	}
	return printRemoved(v, resp.Removed)
}

func newCleanupCmd() *cobra.Command {
	cmd := clientCmd("cleanup", "Apply the retention policy now", cobra.NoArgs, runCleanup)
	cmd.Long = `Removes entries older than history.retention_days and entries beyond the
newest history.max_entries, using the daemon's current settings.`
	return cmd
}

func runCleanup(_ *cobra.Command, v *viper.Viper, _ []string) error {
	resp, err := call(&message.Message{Type: message.TypeCleanup}, callTimeout)
	if err != nil {
		return err
	}
	return printRemoved(v, resp.Removed)
}

func printRemoved(v *viper.Viper, n int64) error {
	if v.GetBool("json") {
		return printJSON(map[string]int64{"removed": n})
	}
	fmt.Printf("Removed %d entries\n", n)
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entry id %q", s)
	}
	return id, nil
}
