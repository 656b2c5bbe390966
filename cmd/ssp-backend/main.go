// Package main is ssp-backend's process entry point.
package main

import (
	"fmt"
	"os"

	"sspbackend/internal/sspcmd"
)

func main() {
	if err := sspcmd.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
