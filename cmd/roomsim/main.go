// Command roomsim drives drawing rooms from the terminal: list rooms, watch a
// room live, run a session and let simulated users draw into it.
package main

import (
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("roomsim: %v", err)
		os.Exit(1)
	}
}
