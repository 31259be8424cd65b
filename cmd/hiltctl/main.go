// Command hiltctl pokes a connected tester by hand: pin reads and writes,
// bus sends and a bus listener.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"warrior/internal/adapter/serialport"
	"warrior/internal/app"
)

func main() {
	cfgPath, args := app.ConfigPath(os.Args[1:])
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "help", "-h", "--help":
		showUsage()
		return
	case "ports":
		if err := listPorts(os.Stdout, serialport.List); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := probe(cfgPath, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func probe(cfgPath string, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := app.Open(ctx, app.Options{ConfigPath: cfgPath, Plain: true})
	if err != nil {
		return err
	}
	defer b.Close()

	c := &console{h: b.Hilt, out: os.Stdout}
	return c.run(ctx, args)
}

func showUsage() {
	fmt.Println(`hiltctl - hardware-in-the-loop tester probe

Usage:
  hiltctl [--config PATH] <command> [args]

Commands:
  read-digital  <slot> <pin>          Sample a digital pin
  read-analog   <slot> <pin>          Sample an analog pin in volts
  write-digital <slot> <pin> <0|1>    Drive a digital pin
  write-analog  <slot> <pin> <volts>  Drive a PWM pin to a voltage
  send <MSG_TYPE> [key=value ...]     Send a bus message
  listen [seconds] [key=value ...]    Print matching bus messages (0 = until Ctrl+C)
  ports                               List serial ports

Slots are numbered from 1, pins are 0 or 1. The config path defaults to
$WARRIOR_CONFIG, then warrior.yaml.`)
}
