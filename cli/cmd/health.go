// ABOUTME: Health command for the eduportal CLI
// ABOUTME: Checks gateway connectivity and lists configured upstreams

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edusphere/portal-gateway/cli/internal/client"
	"github.com/edusphere/portal-gateway/cli/internal/styles"
	"github.com/edusphere/portal-gateway/models"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check gateway connectivity",
	Long:  `Check connectivity to the EduPortal gateway and list the upstream services it routes to.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		exitCode := runHealth(ctx, os.Stdout)
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

// runHealth executes the health check and returns exit code
func runHealth(ctx context.Context, w io.Writer) int {
	url := GetAPIURL()
	c := client.New(url)

	resp, err := c.Health(ctx)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return 2
	}

	if IsJSONOutput() {
		fmt.Fprintln(w, formatHealthJSON(url, resp))
	} else {
		fmt.Fprintln(w, formatHealthHuman(url, resp))
	}

	return 0
}

// formatHealthHuman formats health response for human readability
func formatHealthHuman(url string, resp *models.HealthResponse) string {
	names := make([]string, 0, len(resp.Upstreams))
	for name := range resp.Upstreams {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(styles.Field("Gateway:", url) + "\n")
	b.WriteString(styles.Field("Status:", styles.StatusOK.Render(resp.Status)) + "\n")
	b.WriteString(styles.Field("Routes:", fmt.Sprintf("%d", resp.Routes)))
	for _, name := range names {
		b.WriteString("\n" + styles.Field("  "+name, resp.Upstreams[name]))
	}
	return b.String()
}

// formatHealthJSON formats health response as JSON
func formatHealthJSON(url string, resp *models.HealthResponse) string {
	output := map[string]interface{}{
		"gateway":   url,
		"status":    resp.Status,
		"routes":    resp.Routes,
		"upstreams": resp.Upstreams,
	}
	data, _ := json.MarshalIndent(output, "", "  ")
	return string(data)
}
