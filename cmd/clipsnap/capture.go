package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipsnap/internal/capture"
	"go.klb.dev/clipsnap/internal/message"
)

func newCaptureCmd() *cobra.Command {
	cmd := clientCmd("capture", "Select a screen region and copy it to the clipboard", cobra.NoArgs, runCapture)
	cmd.Long = `Asks the running daemon to show the selection overlay. Drag with the left
mouse button to pick a region; Escape or the right button cancels.

The captured PNG is placed on the clipboard, added to the history and
written to capture.export_path. A cancelled selection exits 0 and prints
nothing.`
	return cmd
}

func runCapture(_ *cobra.Command, v *viper.Viper, _ []string) error {
	// The user may take as long as they like to drag.
	resp, err := call(&message.Message{Type: message.TypeCapture}, 0)
	if err != nil {
		return err
	}
	res := resp.Capture
	if res == nil {
		return fmt.Errorf("capture: empty reply")
	}
	if v.GetBool("json") {
		return printJSON(res)
	}

	switch res.Outcome {
	case capture.OutcomeCancelled:
		return nil
	case capture.OutcomePartial:
		fmt.Fprintf(os.Stderr, "warning: captured to clipboard but not saved: %s\n", res.Warning)
	case capture.OutcomeCaptured:
		if res.Entry != nil {
			fmt.Printf("Captured entry %d (%s)\n", res.Entry.ID, fmtSize(res.Entry.ByteSize))
		}
	}
	return nil
}

func newCancelCmd() *cobra.Command {
	cmd := clientCmd("cancel", "Abort a region selection in progress", cobra.NoArgs, runCancel)
	cmd.Long = `Dismisses the selection overlay if a capture is running. The pending
"clipsnap capture" returns as cancelled. Does nothing otherwise.`
	return cmd
}

func runCancel(_ *cobra.Command, v *viper.Viper, _ []string) error {
	resp, err := call(&message.Message{Type: message.TypeCancel}, callTimeout)
	if err != nil {
		return err
	}
	if v.GetBool("json") {
		return printJSON(map[string]bool{"cancelled": resp.Cancelled})
	}
	if !resp.Cancelled {
		fmt.Println("No capture in progress")
	}
	return nil
}
