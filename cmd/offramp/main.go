package main

import (
	"os"

	"github.com/rahataid/rahat-offramp/cmd/offramp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		cmd.PrintError(err)
		os.Exit(1)
	}
}
