package main

import (
	"context"
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/session"
)

var (
	loginEmail    string
	loginPassword string
	registerName  string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the marketplace",
	RunE:  withApp(runLogin),
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE:  withApp(runRegister),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear local session data",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		a.session.SignOut(ctx(cmd), session.DefaultSignOutTarget)
		cmd.Println("Logged out successfully")
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		s := a.session.Current()
		if s == nil {
			cmd.Println("Not signed in")
			return nil
		}
		cmd.Printf("%s <%s>\n", s.Name, s.Email)
		cmd.Printf("  id:   %s\n", s.ID)
		cmd.Printf("  role: %s\n", a.session.EffectiveRole())
		if a.session.IsSpecialAdmin() {
			cmd.Printf("  admin mode: %t\n", a.session.AdminModeEnabled())
		}
		return nil
	}),
}

var adminModeCmd = &cobra.Command{
	Use:       "admin-mode <on|off>",
	Short:     "Toggle admin mode for an allowlisted account",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		var on bool
		switch args[0] {
		case "on":
			on = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		if !a.session.SetAdminMode(on) {
			return fmt.Errorf("admin mode is only available to allowlisted accounts")
		}
		cmd.Printf("Admin mode %s\n", args[0])
		return nil
	}),
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&loginEmail, "email", "", "Email address")
		c.Flags().StringVar(&loginPassword, "password", "", "Password (will prompt if not provided)")
	}
	registerCmd.Flags().StringVar(&registerName, "name", "", "Display name")
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd, adminModeCmd)
}

func promptCredentials(cmd *cobra.Command) error {
	if loginEmail == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Email: ")
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &loginEmail); err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
	}
	if loginPassword == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Password: ")
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		loginPassword = string(b)
	}
	return nil
}

func resetCredentialFlags() {
	loginEmail, loginPassword, registerName = "", "", ""
}

func runLogin(cmd *cobra.Command, a *app, args []string) error {
	defer resetCredentialFlags()
	if err := promptCredentials(cmd); err != nil {
		return err
	}
	a.session.ClearSignOutFlag()
	if _, err := a.identity.SignIn(ctx(cmd), loginEmail, loginPassword); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	cmd.Printf("Signed in as %s\n", a.session.Current().Email)
	return nil
}

func runRegister(cmd *cobra.Command, a *app, args []string) error {
	defer resetCredentialFlags()
	if err := promptCredentials(cmd); err != nil {
		return err
	}
	a.session.ClearSignOutFlag()
	if _, err := a.identity.Register(ctx(cmd), loginEmail, loginPassword, registerName); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	cmd.Printf("Account created, signed in as %s\n", a.session.Current().Email)
	return nil
}

func ctx(cmd *cobra.Command) context.Context {
	if c := cmd.Context(); c != nil {
		return c
	}
	return context.Background()
}
