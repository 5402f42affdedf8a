package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipsnap/internal/history"
	"go.klb.dev/clipsnap/internal/ipc"
	"go.klb.dev/clipsnap/internal/message"
)

func newWatchCmd() *cobra.Command {
	cmd := clientCmd("watch", "Stream history changes as they happen", cobra.NoArgs, runWatch)
	cmd.Long = `Prints one line per history change until interrupted. With --json each
change is printed as a JSON object, one per line.`
	cmd.Flags().StringSlice("ops", nil, "only show these changes: added,deleted,cleared,pruned")
	return cmd
}

func runWatch(_ *cobra.Command, v *viper.Viper, _ []string) error {
	var ops []history.Op
	for _, s := range v.GetStringSlice("ops") {
		switch op := history.Op(s); op {
		case history.OpAdded, history.OpDeleted, history.OpCleared, history.OpPruned:
			ops = append(ops, op)
		default:
			return fmt.Errorf("unknown change %q", s)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wc, err := ipc.Dial()
	if err != nil {
		return err
	}
	defer wc.Close()
	context.AfterFunc(ctx, func() { _ = wc.Close() })

	if err := wc.WriteMsg(&message.Message{Type: message.TypeWatch, Ops: ops}); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	ack, err := wc.ReadMsg()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := ack.Err(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	jsonOut := v.GetBool("json")
	enc := json.NewEncoder(os.Stdout)
	for {
		msg, err := wc.ReadMsg()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		if msg.Type != message.TypeEvent || msg.Change == nil {
			continue
		}
		if jsonOut {
			if err := enc.Encode(msg.Change); err != nil {
				return err
			}
			continue
		}
		printChange(*msg.Change)
	}
}

func printChange(c history.Change) {
	now := time.Now().Format("15:04:05")
	switch c.Op {
	case history.OpAdded:
		if c.Entry == nil {
			break
		}
		fmt.Printf("%s  added    #%d %s %s\n", now, c.Entry.ID, c.Entry.Kind, describe(*c.Entry))
	case history.OpDeleted:
		fmt.Printf("%s  deleted  #%d\n", now, c.ID)
	case history.OpCleared:
		what := "all entries"
		if c.Kind != "" {
			what = string(c.Kind) + " entries"
		}
		fmt.Printf("%s  cleared  %s (%d removed)\n", now, what, c.Count)
	case history.OpPruned:
		fmt.Printf("%s  pruned   %d entries\n", now, c.Count)
	default:
		fmt.Printf("%s  %s\n", now, c.Op)
	}
}
