package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"botvac-bridge/internal/account"

	"github.com/spf13/cobra"
)

// loginCmd runs the emailed one-time-code login and prints the id token,
// which --token (BOTVAC_TOKEN) then accepts.
func loginCmd(a *app) *cobra.Command {
	var code, clientID string
	cmd := &cobra.Command{
		Use:         "login",
		Short:       "Get a passwordless token with a code sent by email",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipCredentials: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.email == "" {
				return errors.New("login needs --email")
			}
			if clientID == "" {
				return errors.New("login needs --client-id (env BOTVAC_CLIENT_ID)")
			}
			v, err := a.relayVendor()
			if err != nil {
				return err
			}
			p := account.NewPasswordless(v, clientID, a.http)

			if code == "" {
				ctx, cancel := a.withTimeout(cmd)
				err := p.SendEmailOTP(ctx, a.email)
				cancel()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Code sent to %s. Enter it: ", a.email)
				if code, err = readCode(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			tok, err := p.FetchToken(ctx, a.email, code)
			if err != nil {
				return err
			}
			if a.format == "json" {
				a.printJSON(tok)
				return nil
			}
			fmt.Fprintln(a.out, tok.IDToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "code from the email; asked on stdin when empty")
	cmd.Flags().StringVar(&clientID, "client-id", envOr("BOTVAC_CLIENT_ID", ""), "auth0 client id (env BOTVAC_CLIENT_ID)")
	return cmd
}

func readCode(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", errors.New("no code entered")
	}
	return code, nil
}
