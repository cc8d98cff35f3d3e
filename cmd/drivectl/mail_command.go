package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/agjmills/drive/internal/mail"
	"github.com/spf13/cobra"
)

func newMailCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "mail",
		Short:       "Email diagnostics",
		Annotations: map[string]string{"skipSetup": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(withSetup(&cobra.Command{
		Use:   "test <address>",
		Short: "Send a test email with the configured SMTP settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ctx.sender == nil {
				return errors.New("email is not configured: set EMAIL_HOST, EMAIL_USER, EMAIL_PASS and EMAIL_FROM")
			}
			msg, err := mail.Test(args[0])
			if err != nil {
				return err
			}

			sendCtx, cancel := context.WithTimeout(cmd.Context(), ctx.cfg.EmailTimeout)
			defer cancel()
			if err := ctx.sender.Send(sendCtx, msg.To, msg.Subject, msg.HTML); err != nil {
				return fmt.Errorf("send test email: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test email sent to %s\n", msg.To)
			return nil
		},
	}))
	return cmd
}
