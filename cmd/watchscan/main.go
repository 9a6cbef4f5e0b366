package main

import (
	"errors"
	"os"

	"github.com/sofmeright/watchscan/internal/cli/cmd"
	"github.com/sofmeright/watchscan/internal/cliexit"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}
	var exitErr *cliexit.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(1)
}
