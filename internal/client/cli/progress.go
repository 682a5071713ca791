package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/atinyakov/kosync/internal/models"
	"github.com/spf13/cobra"
)

// NewPushCommand creates the push command.
func NewPushCommand(opts *RootOptions) *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "push <document> <percentage> <progress>",
		Short: "Report this device's position in a document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := e.requireLogin(); err != nil {
				return err
			}
			pct := json.Number(args[1])
			if _, err := pct.Float64(); err != nil {
				return fmt.Errorf("percentage %q is not a number", args[1])
			}
			if e.profile.EnsureDevice() {
				if err := e.save(); err != nil {
					return err
				}
			}
			name := e.profile.Device
			if device != "" {
				name = device
			}

			resp, err := e.api.PushProgress(cmd.Context(), models.Progress{
				DeviceID:   e.profile.DeviceID,
				Percentage: pct,
				Document:   args[0],
				Progress:   args[2],
				Device:     name,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Stored %s at %s\n", resp.Document, time.Unix(resp.Timestamp, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "device name for this push (defaults to the profile's)")
	return cmd
}

// NewPullCommand creates the pull command.
func NewPullCommand(opts *RootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "pull <document>",
		Short: "Show the most recent position in a document across devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := e.requireLogin(); err != nil {
				return err
			}
			p, err := e.api.PullProgress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				if p == nil {
					fmt.Fprintln(e.out, "{}")
					return nil
				}
				b, err := json.MarshalIndent(p, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(e.out, string(b))
				return nil
			}
			if p == nil {
				fmt.Fprintf(e.out, "No progress for %s\n", args[0])
				return nil
			}
			mine := ""
			if p.DeviceID == e.profile.DeviceID {
				mine = " (this device)"
			}
			fmt.Fprintf(e.out, "Document: %s\nPercentage: %s\nProgress: %s\nDevice: %s%s\nUpdated: %s\n",
				p.Document, p.Percentage, p.Progress, p.Device, mine,
				time.Unix(p.Timestamp, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw record")
	return cmd
}
