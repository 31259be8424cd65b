// Command example is a smoke suite for a freshly wired bench: it checks that
// bus traffic reaches the tester and, with --loopback, that slot 10's output
// A is jumpered to slot 9's input A and tracks what it is driven to.
package main

import (
	"context"
	"fmt"
	"os"

	"warrior/internal/app"
)

func main() {
	cfgPath, args := app.ConfigPath(os.Args[1:])
	loopback := false
	for _, a := range args {
		switch a {
		case "--loopback":
			loopback = true
		default:
			fmt.Println("Usage: example [--config PATH] [--loopback]")
			os.Exit(1)
		}
	}

	if err := run(cfgPath, loopback); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string, loopback bool) error {
	ctx := context.Background()
	b, err := app.Open(ctx, app.Options{ConfigPath: cfgPath})
	if err != nil {
		return err
	}
	defer b.Close()

	s, err := newSuite(ctx, b.Hilt)
	if err != nil {
		return err
	}
	s.register(b.Runner, loopback)
	return b.Run(ctx, os.Stdout)
}
