package cli

import (
	"fmt"

	"github.com/atinyakov/kosync/internal/client"
	"github.com/spf13/cobra"
)

func (o *RootOptions) password(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return client.PromptPassword(o.Stdin, cmd.ErrOrStderr(), "Password: ")
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(opts *RootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and store its credentials in the profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd)
			if err != nil {
				return err
			}
			pw, err := opts.password(cmd, password)
			if err != nil {
				return err
			}
			if err := e.api.Register(cmd.Context(), args[0], pw); err != nil {
				return err
			}
			e.profile.Username = args[0]
			e.profile.Key = client.HashKey(pw)
			e.profile.EnsureDevice()
			if err := e.save(); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Registered %s on %s\n", args[0], e.profile.Server)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	return cmd
}

// NewLoginCommand creates the login command.
func NewLoginCommand(opts *RootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Check credentials and store them in the profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd)
			if err != nil {
				return err
			}
			pw, err := opts.password(cmd, password)
			if err != nil {
				return err
			}
			key := client.HashKey(pw)
			if err := e.api.WithCredentials(args[0], key).Authorize(cmd.Context()); err != nil {
				if client.IsUnauthorized(err) {
					return fmt.Errorf("wrong username or password")
				}
				return err
			}
			e.profile.Username = args[0]
			e.profile.Key = key
			e.profile.EnsureDevice()
			if err := e.save(); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Logged in as %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	return cmd
}

// NewHealthCommand creates the health command.
func NewHealthCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := e.api.Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s is up\n", e.profile.Server)
			return nil
		},
	}
}
