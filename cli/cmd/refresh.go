// ABOUTME: Refresh command for the eduportal CLI
// ABOUTME: Exchanges the stored token for a new one, clearing the session on failure

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edusphere/portal-gateway/cli/internal/styles"
	"github.com/edusphere/portal-gateway/middleware"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the session token",
	Long: `Renew the stored token. A rejected refresh signs you out.

Exit codes:
  0 - Token renewed
  1 - Not signed in, or the refresh was rejected or interrupted`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		sess, err := openSession(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		defer sess.close()

		if exitCode := runRefresh(ctx, os.Stdout, sess); exitCode != 0 {
			os.Exit(exitCode)
		}
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(ctx context.Context, w io.Writer, sess *cliSession) int {
	snap := sess.store.Snapshot()
	if !snap.IsAuthenticated {
		fmt.Fprintln(w, styles.StatusWarning.Render("Not signed in"))
		return 1
	}
	if tokenExpired(snap.Token, time.Now()) {
		fmt.Fprintln(w, styles.StatusWarning.Render("Stored token has expired"))
	}

	if !sess.store.RefreshToken(ctx) {
		if sess.store.Snapshot().IsAuthenticated {
			fmt.Fprintln(w, styles.StatusWarning.Render("Refresh did not complete, session unchanged"))
		} else {
			fmt.Fprintln(w, styles.StatusCritical.Render("Refresh rejected, signed out"))
		}
		return 1
	}

	fmt.Fprintln(w, styles.StatusOK.Render("Token renewed"))
	if claims, err := middleware.ParseToken(sess.store.Token()); err == nil && !claims.ExpiresAt.IsZero() {
		fmt.Fprintln(w, styles.Field("Expires:", claims.ExpiresAt.Local().Format(time.RFC1123)))
	}
	return 0
}
