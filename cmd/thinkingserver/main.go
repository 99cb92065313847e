// Command thinkingserver runs the sequential-thinking MCP server.
package main

import (
	"fmt"
	"os"

	"github.com/rand/thinkingserver/internal/thinking/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
