package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agjmills/drive/internal/database/models"
	"github.com/agjmills/drive/internal/files"
	"github.com/spf13/cobra"
)

const passwordEnv = "DRIVE_NEW_PASSWORD"

func newUsersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "users",
		Short:       "Inspect and modify accounts",
		Annotations: map[string]string{"skipSetup": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newUsersListCommand(ctx))
	cmd.AddCommand(newUsersShowCommand(ctx))
	cmd.AddCommand(newUsersSetEmailCommand(ctx))
	cmd.AddCommand(newUsersSetPasswordCommand(ctx))
	cmd.AddCommand(newUsersSetRoleCommand(ctx))
	return cmd
}

// withSetup clears the help-only annotation inherited from the parent.
func withSetup(cmd *cobra.Command) *cobra.Command {
	cmd.Annotations = map[string]string{"skipSetup": "false"}
	return cmd
}

func fileRecords(u *models.User) ([]files.Record, error) {
	entries, err := files.ParseList(u.Files)
	if err != nil {
		return nil, err
	}
	return files.Records(entries), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	return withSetup(&cobra.Command{
		Use:   "list",
		Short: "List every account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := ctx.users.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users")
				return nil
			}

			rows := make([][]string, 0, len(users))
			for i := range users {
				u := &users[i]
				count := "?"
				if records, err := fileRecords(u); err == nil {
					count = strconv.Itoa(len(records))
				}
				rows = append(rows, []string{
					strconv.FormatUint(uint64(u.ID), 10), u.Username, u.Email, u.Role, count, formatTime(u.CreatedAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Username", "Email", "Role", "Files", "Created"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	})
}

func newUsersShowCommand(ctx *commandContext) *cobra.Command {
	return withSetup(&cobra.Command{
		Use:   "show <username|email>",
		Short: "Show one account and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := ctx.accounts.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, [][]string{
				{"ID", strconv.FormatUint(uint64(u.ID), 10)},
				{"Username", u.Username},
				{"Email", u.Email},
				{"Role", u.Role},
				{"Pending reset code", yesNo(u.OTPCode != nil)},
				{"Pending reset link", yesNo(u.ResetTokenHash != nil)},
				{"Created", formatTime(u.CreatedAt)},
			}, nil))

			records, err := fileRecords(u)
			if err != nil {
				return fmt.Errorf("decode file list: %w", err)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No files")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{rec.StorageKey, rec.OriginalName, formatTime(rec.UploadDate), yesNo(rec.Legacy)})
			}
			fmt.Fprintln(out, renderTable([]string{"Key", "Name", "Uploaded", "Legacy"}, rows, nil))
			return nil
		},
	})
}

func newUsersSetEmailCommand(ctx *commandContext) *cobra.Command {
	return withSetup(&cobra.Command{
		Use:   "set-email <username|email> <new-email>",
		Short: "Change an account's email address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := ctx.accounts.SetEmail(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: email is now %s\n", u.Username, u.Email)
			return nil
		},
	})
}

func newUsersSetPasswordCommand(ctx *commandContext) *cobra.Command {
	var password string
	var fromEnv bool

	cmd := withSetup(&cobra.Command{
		Use:   "set-password <username|email>",
		Short: "Replace an account's password",
		Long:  "Replace an account's password. Pending reset codes and links are revoked.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromEnv {
				password = os.Getenv(passwordEnv)
			}
			if strings.TrimSpace(password) == "" {
				return errors.New("a password is required: pass --password or --password-env")
			}
			u, err := ctx.accounts.SetPassword(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: password changed\n", u.Username)
			return nil
		},
	})
	cmd.Flags().StringVar(&password, "password", "", "new password")
	cmd.Flags().BoolVar(&fromEnv, "password-env", false, "read the new password from "+passwordEnv)
	cmd.MarkFlagsMutuallyExclusive("password", "password-env")
	return cmd
}

func newUsersSetRoleCommand(ctx *commandContext) *cobra.Command {
	return withSetup(&cobra.Command{
		Use:       "set-role <username|email> <user|admin>",
		Short:     "Grant or revoke admin",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{models.RoleUser, models.RoleAdmin},
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := ctx.accounts.SetRole(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: role is now %s\n", u.Username, u.Role)
			return nil
		},
	})
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
