package main

import (
	"os"

	"github.com/trainops/instructor-dispatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
