package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"frintab/internal/core"
)

// passwordEnv supplies the password when --password is not given.
const passwordEnv = "FRINTAB_PASSWORD"

type credentialFlags struct {
	Email    string
	Password string
}

func (c *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.Email, "email", "", "account email")
	cmd.Flags().StringVar(&c.Password, "password", "", "account password (default $"+passwordEnv+")")
}

func (c *credentialFlags) password() string {
	if c.Password != "" {
		return c.Password
	}
	return os.Getenv(passwordEnv)
}

func newRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		creds credentialFlags
		name  string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, release, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			if err := app.Session.Register(cmd.Context(), name, creds.Email, creds.password()); err != nil {
				return err
			}
			out := map[string]string{"status": "registered", "email": creds.Email}
			return rootOpts.formatter(cmd).Print(out, func(w io.Writer) {
				fmt.Fprintf(w, "Registered %s. Log in with `frintab login --email %s`.\n", creds.Email, creds.Email)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	creds.bind(cmd)
	return cmd
}

func newLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, release, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			user, err := app.Session.Login(cmd.Context(), core.Credentials{Email: creds.Email, Password: creds.password()})
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Print(toUserOutput(user), func(w io.Writer) {
				fmt.Fprintf(w, "Logged in as %s <%s>\n", user.Name, user.Email)
			})
		},
	}
	creds.bind(cmd)
	return cmd
}

func newLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, release, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			if err := app.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Print(map[string]string{"status": "logged out"}, func(w io.Writer) {
				fmt.Fprintln(w, "Logged out")
			})
		},
	}
}

func newWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, release, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			user, err := app.Session.RequireUser("whoami")
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Print(toUserOutput(user), func(w io.Writer) {
				fmt.Fprintf(w, "%s <%s>\n", user.Name, user.Email)
			})
		},
	}
}
