package main

import (
	"os"

	"github.com/gitmzc/claude-code-bridge/cmd/ccb/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
