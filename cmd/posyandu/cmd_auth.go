package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/backend"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/service"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/store"

	"github.com/spf13/cobra"
)

// cliSessionKey CLI 会话在会话文件中的 key
const cliSessionKey = "posyandu:cli"

var (
	password     string
	whoamiRemote bool
)

var loginCmd = &cobra.Command{
	Use:   "login <username|email>",
	Short: "Sign in with a username or e-mail address",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var signupCmd = &cobra.Command{
	Use:   "signup <username|email>",
	Short: "Create an account; a confirmation link is e-mailed",
	Args:  cobra.ExactArgs(1),
	RunE:  runSignup,
}

var forgotPasswordCmd = &cobra.Command{
	Use:   "forgot-password <username|email>",
	Short: "E-mail a password reset link",
	Args:  cobra.ExactArgs(1),
	RunE:  runForgotPassword,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")
	}
	whoamiCmd.Flags().BoolVar(&whoamiRemote, "remote", false, "ask the backend who the stored token belongs to")
}

// cliSession is the AuthSession persisted in the CLI session file.
func (a *app) cliSession() *backend.AuthSession {
	return backend.NewAuthSession(a.client, store.NewFileKV(a.cfg.Session.File), cliSessionKey, a.cfg.Session.TTL, a.logger)
}

// readPassword returns the --password flag or the first line of in.
func readPassword(flag string, in io.Reader) (string, error) {
	if flag != "" {
		return flag, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// submitForm runs action as one auth form submission and prints its outcome.
// A failed outcome is returned as the command error.
func submitForm(cmd *cobra.Command, successMsg string, action func(ctx context.Context) error) error {
	outcome, err := service.NewAuthForm().Submit(cmd.Context(), successMsg, action)
	if err != nil {
		return errors.New(service.UserMessage(err))
	}
	if !outcome.OK {
		return errors.New(outcome.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "posyandu-cli")
	if err != nil {
		return err
	}
	defer a.Close()

	pw, err := readPassword(password, cmd.InOrStdin())
	if err != nil {
		return err
	}
	slot := a.cliSession()
	return submitForm(cmd, service.MsgSignedIn, func(ctx context.Context) error {
		_, err := a.auth.SignIn(ctx, slot, service.AuthRequest{Login: args[0], Password: pw})
		return err
	})
}

func runSignup(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "posyandu-cli")
	if err != nil {
		return err
	}
	defer a.Close()

	pw, err := readPassword(password, cmd.InOrStdin())
	if err != nil {
		return err
	}
	slot := a.cliSession()
	return submitForm(cmd, service.MsgSignUpSent, func(ctx context.Context) error {
		return a.auth.SignUp(ctx, slot, service.AuthRequest{Login: args[0], Password: pw})
	})
}

func runForgotPassword(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "posyandu-cli")
	if err != nil {
		return err
	}
	defer a.Close()

	slot := a.cliSession()
	return submitForm(cmd, service.MsgResetLinkSent, func(ctx context.Context) error {
		return a.auth.ForgotPassword(ctx, slot, args[0])
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "posyandu-cli")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.auth.SignOut(cmd.Context(), a.cliSession()); err != nil {
		return errors.New(service.ActionMessage(err, service.MsgSignOutFail))
	}
	fmt.Fprintln(cmd.OutOrStdout(), service.MsgSignedOut)
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "posyandu-cli")
	if err != nil {
		return err
	}
	defer a.Close()

	sc := service.NewSessionContext(a.cliSession(), a.logger)
	if err := sc.Start(cmd.Context()); err != nil {
		return err
	}
	defer sc.Stop()

	user := sc.User()
	if user == nil {
		return errors.New(service.MsgNotSignedIn)
	}
	if whoamiRemote {
		remote, err := a.client.GetUser(cmd.Context(), sc.Current().AccessToken)
		if err != nil {
			return errors.New(service.UserMessage(err))
		}
		user = remote
	}
	fmt.Fprintln(cmd.OutOrStdout(), user.Email)
	return nil
}
