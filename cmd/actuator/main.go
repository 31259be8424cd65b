// Command actuator runs the actuator board suite against one valve
// controller wired to the bench.
//
// Bench wiring:
//
//	Slot 10, output A: hall sensor feedback pin (LIMIT_CLOSED)
//	Slot 9, input A:   12V supply to the actuator's CAN connector
//	Slot 9, input B:   actuator output (RELAY_MINUS), 10k pull-up to 5V
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"warrior/internal/app"
)

func main() {
	cfgPath, args := app.ConfigPath(os.Args[1:])
	if len(args) != 1 {
		showUsage()
		os.Exit(1)
	}
	act, ok := actuators[args[0]]
	if !ok {
		showUsage()
		os.Exit(1)
	}

	if err := run(cfgPath, act); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string, act actuator) error {
	ctx := context.Background()
	b, err := app.Open(ctx, app.Options{ConfigPath: cfgPath})
	if err != nil {
		return err
	}
	defer b.Close()

	s, err := newSuite(ctx, b.Hilt, act)
	if err != nil {
		return err
	}
	s.register(b.Runner)
	return b.Run(ctx, os.Stdout)
}

func showUsage() {
	names := make([]string, 0, len(actuators))
	for name := range actuators {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf("Usage: actuator [--config PATH] <actuator_id>\n\nactuator_id must be one of: %s\n", strings.Join(names, ", "))
}
