// ABOUTME: Login command for the eduportal CLI
// ABOUTME: Prompts for credentials when flags are absent and stores the new session

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/edusphere/portal-gateway/cli/internal/styles"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and save the session",
	Long: `Sign in through the gateway. Without --email and --password an
interactive form asks for them. The password may also come from
EDUPORTAL_PASSWORD for scripted use.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		email, password := loginEmail, loginPassword
		if password == "" {
			password = os.Getenv("EDUPORTAL_PASSWORD")
		}
		if email == "" || password == "" {
			var err error
			email, password, err = promptCredentials(email)
			if err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					os.Exit(130)
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(2)
			}
		}

		sess, err := openSession(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		defer sess.close()

		if exitCode := runLogin(ctx, os.Stdout, sess, email, password); exitCode != 0 {
			os.Exit(exitCode)
		}
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password (prefer EDUPORTAL_PASSWORD or the prompt)")
}

func promptCredentials(email string) (string, string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}),
		).Title("Sign in to EduPortal"),
	).WithTheme(styles.FormTheme())

	if err := form.Run(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(email), password, nil
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("email is required")
	}
	if !strings.Contains(s, "@") {
		return errors.New("email must contain @")
	}
	return nil
}

// runLogin authenticates and replaces the stored session. Returns exit code.
func runLogin(ctx context.Context, w io.Writer, sess *cliSession, email, password string) int {
	if err := validateEmail(email); err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return 2
	}

	resp, err := sess.client.Auth().Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", sess.client.HandleRequestError(ctx, err))
		return 1
	}

	sess.store.SetUserAndToken(resp.User, resp.Token)

	if IsJSONOutput() {
		fmt.Fprintln(w, formatUserJSON(sess.store.Snapshot()))
		return 0
	}
	fmt.Fprintf(w, "%s %s (%s)\n", styles.StatusOK.Render("Signed in as"), resp.User.Name, resp.User.Email)
	return 0
}
