package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lending/internal/app"
)

func newUserCmd(e *env) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var req app.NewUserRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account; the password is read from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			req.Password = password

			db, err := e.open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			u, err := app.NewAuthService(db, nil).CreateUser(cmd.Context(), operator, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (id %d)\n", u.Role, u.Email, u.ID)
			return nil
		},
	}
	create.Flags().StringVar(&req.Email, "email", "", "login email")
	create.Flags().StringVar(&req.Role, "role", "member", "member or librarian")
	create.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	create.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	_ = create.MarkFlagRequired("email")

	user.AddCommand(create)
	return user
}

// readPassword reads a masked password from a terminal, or one line from in
// when it is not a terminal.
func readPassword(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
