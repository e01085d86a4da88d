// ABOUTME: Logout command for the eduportal CLI
// ABOUTME: Clears the stored session

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/edusphere/portal-gateway/cli/internal/styles"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		sess, err := openSession(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		defer sess.close()

		runLogout(os.Stdout, sess)
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

// runLogout always succeeds; signing out twice is harmless
func runLogout(w io.Writer, sess *cliSession) {
	sess.store.ClearAuth()
	fmt.Fprintln(w, styles.StatusOK.Render("Signed out"))
}
