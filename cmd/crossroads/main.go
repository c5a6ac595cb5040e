package main

import (
	"fmt"
	"os"

	"github.com/roach88/crossroads/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
