// Package main is the kosync command-line client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/atinyakov/kosync/internal/client/cli"
)

var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	v := fmt.Sprintf("%s (built %s)", orNA(version), orNA(buildDate))
	os.Exit(cli.Execute(ctx, v, os.Args[1:], os.Stdout, os.Stderr))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
