// Package cli implements the kosync command-line client.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/atinyakov/kosync/internal/client"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ProfilePath string
	Server      string
	CAFile      string

	// Stdin is where passwords are read from when not given as flags.
	Stdin *os.File
}

// env bundles what a command needs once global flags are resolved.
type env struct {
	opts    *RootOptions
	profile *client.Profile
	api     *client.API
	out     io.Writer
}

func (o *RootOptions) load(cmd *cobra.Command) (*env, error) {
	p, err := client.LoadProfile(o.ProfilePath)
	if err != nil {
		return nil, err
	}
	if o.Server != "" {
		p.Server = o.Server
	}
	if o.CAFile != "" {
		p.CAFile = o.CAFile
	}
	httpClient, err := client.NewHTTPClient(p.CAFile)
	if err != nil {
		return nil, err
	}
	api := client.NewAPI(p.Server, httpClient).WithCredentials(p.Username, p.Key)
	return &env{opts: o, profile: p, api: api, out: cmd.OutOrStdout()}, nil
}

func (e *env) save() error {
	return e.profile.Save(e.opts.ProfilePath)
}

func (e *env) requireLogin() error {
	if !e.profile.LoggedIn() {
		return fmt.Errorf("not logged in, run \"kosync login\" first")
	}
	return nil
}

// NewRootCommand creates the root command of the client.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Stdin: os.Stdin}

	cmd := &cobra.Command{
		Use:           "kosync",
		Short:         "Reading progress sync client",
		Long:          "Register with a sync server, push reading progress and pull it back from any device.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ProfilePath, "profile", client.DefaultProfilePath(), "profile file")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "server base URL (saved to the profile on login)")
	cmd.PersistentFlags().StringVar(&opts.CAFile, "ca", "", "CA certificate for a TLS server")

	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewPullCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, version string, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand(version)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}
