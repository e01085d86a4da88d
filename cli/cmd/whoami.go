// ABOUTME: Whoami command for the eduportal CLI
// ABOUTME: Shows the stored user and optionally reloads the profile from the user service

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edusphere/portal-gateway/cli/internal/styles"
	"github.com/edusphere/portal-gateway/middleware"
	"github.com/edusphere/portal-gateway/services"
	"github.com/edusphere/portal-gateway/session"
)

var whoamiFetch bool

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Long: `Show the user stored in the local session.

With --fetch the profile is reloaded through the gateway. An expired token
is refreshed once before giving up.

Exit codes:
  0 - Signed in
  1 - Not signed in, or the session could not be renewed
  2 - Error (connectivity, storage)`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		sess, err := openSession(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		defer sess.close()

		if exitCode := runWhoami(ctx, os.Stdout, sess, whoamiFetch); exitCode != 0 {
			os.Exit(exitCode)
		}
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
	whoamiCmd.Flags().BoolVar(&whoamiFetch, "fetch", false, "Reload the profile from the user service")
}

func runWhoami(ctx context.Context, w io.Writer, sess *cliSession, fetch bool) int {
	snap := sess.store.Snapshot()
	if !snap.IsAuthenticated {
		fmt.Fprintln(w, styles.StatusWarning.Render("Not signed in"))
		return 1
	}

	if fetch {
		if code := reloadProfile(ctx, w, sess); code != 0 {
			return code
		}
		snap = sess.store.Snapshot()
	}

	if IsJSONOutput() {
		fmt.Fprintln(w, formatUserJSON(snap))
	} else {
		fmt.Fprintln(w, formatUserHuman(snap))
	}
	return 0
}

// reloadProfile fetches the current user. A token whose exp has passed is
// refreshed up front; otherwise the token is refreshed once on 401.
func reloadProfile(ctx context.Context, w io.Writer, sess *cliSession) int {
	snap := sess.store.Snapshot()

	if tokenExpired(snap.Token, time.Now()) {
		slog.Debug("Stored token expired, refreshing before fetch")
		if !sess.store.RefreshToken(ctx) {
			fmt.Fprintln(w, styles.StatusCritical.Render("Session expired, sign in again"))
			return 1
		}
		snap = sess.store.Snapshot()
	}

	user, err := sess.client.Users(snap.Token).GetUser(ctx, snap.User.ID)
	var upErr *services.UpstreamError
	if errors.As(err, &upErr) && upErr.StatusCode == http.StatusUnauthorized {
		if !sess.store.RefreshToken(ctx) {
			fmt.Fprintln(w, styles.StatusCritical.Render("Session expired, sign in again"))
			return 1
		}
		user, err = sess.client.Users(sess.store.Token()).GetUser(ctx, snap.User.ID)
	}
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", sess.client.HandleRequestError(ctx, err))
		return 2
	}

	sess.store.SetUser(user)
	return 0
}

func formatUserHuman(snap session.Snapshot) string {
	u := snap.User
	out := styles.Title.Render(u.Name) + "\n" +
		styles.Field("Email:", u.Email) + "\n" +
		styles.Field("Role:", string(u.Role)) + "\n" +
		styles.Field("User ID:", u.ID)
	if u.School != "" {
		out += "\n" + styles.Field("School:", u.School)
	}
	return styles.Panel.Render(out)
}

func formatUserJSON(snap session.Snapshot) string {
	output := map[string]interface{}{
		"state": snap.State().String(),
		"user":  snap.User,
	}
	data, _ := json.MarshalIndent(output, "", "  ")
	return string(data)
}

// tokenExpired reports whether token carries an exp claim in the past.
// Opaque tokens are never considered expired.
func tokenExpired(token string, now time.Time) bool {
	claims, err := middleware.ParseToken(token)
	if err != nil {
		return false
	}
	return claims.Expired(now)
}
