// ABOUTME: Entry point for the eduportal CLI
// ABOUTME: Signs in through the gateway and manages the locally persisted session

package main

import (
	"fmt"
	"os"

	"github.com/edusphere/portal-gateway/cli/cmd"
	"github.com/edusphere/portal-gateway/logger"
)

func main() {
	logger.InitCLI()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
