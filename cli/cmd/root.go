// ABOUTME: Root command for the eduportal CLI
// ABOUTME: Handles global flags and configuration

package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	apiURL     string
	jsonOutput bool
	sessionDir string
)

const defaultAPIURL = "http://localhost:8080"

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "eduportal",
	Short: "CLI for the EduPortal gateway",
	Long: `eduportal signs in through the EduPortal API gateway and keeps the
session on disk so later commands reuse it.

Environment Variables:
  EDUPORTAL_API_URL      Gateway URL (default: http://localhost:8080)
  EDUPORTAL_SESSION_DIR  Session directory (default: ~/.config/eduportal)
  EDUPORTAL_REDIS_ADDR   Store the session in Redis instead of on disk
  EDUPORTAL_REDIS_PASSWORD, EDUPORTAL_REDIS_DB
  LOG_LEVEL, LOG_FORMAT  Diagnostic logging on stderr`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Gateway URL (overrides EDUPORTAL_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-readable text")
	rootCmd.PersistentFlags().StringVar(&sessionDir, "session-dir", "", "Session directory (overrides EDUPORTAL_SESSION_DIR)")
}

// GetAPIURL returns the API URL from flag, env, or default (in priority order)
func GetAPIURL() string {
	if apiURL != "" {
		return apiURL
	}
	if envURL := os.Getenv("EDUPORTAL_API_URL"); envURL != "" {
		return envURL
	}
	return defaultAPIURL
}

// GetSessionDir returns the session directory from flag, env, or the user
// config directory
func GetSessionDir() string {
	if sessionDir != "" {
		return sessionDir
	}
	if envDir := os.Getenv("EDUPORTAL_SESSION_DIR"); envDir != "" {
		return envDir
	}
	if cfgDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(cfgDir, "eduportal")
	}
	return ".eduportal"
}

// IsJSONOutput returns whether JSON output is requested
func IsJSONOutput() bool {
	return jsonOutput
}
