package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"warrior/internal/adapter/serialport"
	"warrior/internal/domain"
	"warrior/internal/hilt"
)

// listenPoll bounds each receive so an open-ended listen notices Ctrl+C.
const listenPoll = time.Second

type console struct {
	h   *hilt.Hilt
	out io.Writer
}

func (c *console) run(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "read-digital":
		return c.readDigital(ctx, rest)
	case "read-analog":
		return c.readAnalog(ctx, rest)
	case "write-digital":
		return c.writeDigital(ctx, rest)
	case "write-analog":
		return c.writeAnalog(ctx, rest)
	case "send":
		return c.send(ctx, rest)
	case "listen":
		return c.listen(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q (see hiltctl help)", cmd)
	}
}

func (c *console) readDigital(ctx context.Context, args []string) error {
	slot, pin, err := c.pinArgs(args, 2)
	if err != nil {
		return err
	}
	p := c.h.Slot(slot).Digital[pin]
	high, err := p.Read(ctx)
	if err != nil {
		return err
	}
	level := "low"
	if high {
		level = "high"
	}
	fmt.Fprintf(c.out, "%s: %s\n", p.ID(), level)
	return nil
}

func (c *console) readAnalog(ctx context.Context, args []string) error {
	slot, pin, err := c.pinArgs(args, 2)
	if err != nil {
		return err
	}
	p := c.h.Slot(slot).Analog[pin]
	v, err := p.ReadVoltage(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %.3f V\n", p.ID(), v)
	return nil
}

func (c *console) writeDigital(ctx context.Context, args []string) error {
	slot, pin, err := c.pinArgs(args, 3)
	if err != nil {
		return err
	}
	var high bool
	switch args[2] {
	case "1", "high", "on":
		high = true
	case "0", "low", "off":
	default:
		return fmt.Errorf("level %q: want 0 or 1", args[2])
	}
	return c.h.Slot(slot).Digital[pin].Write(ctx, high)
}

func (c *console) writeAnalog(ctx context.Context, args []string) error {
	slot, pin, err := c.pinArgs(args, 3)
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("voltage %q: %w", args[2], err)
	}
	return c.h.Slot(slot).PWM[pin].WriteVoltage(ctx, v)
}

func (c *console) send(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: send <MSG_TYPE> [key=value ...]")
	}
	fields, err := parseFields(args[1:])
	if err != nil {
		return err
	}
	return c.h.Send(ctx, args[0], fields)
}

// listen prints messages matching the criteria until the window closes.
// Messages arriving while one is being printed may be missed.
func (c *console) listen(ctx context.Context, args []string) error {
	var window time.Duration
	if len(args) > 0 && !strings.Contains(args[0], "=") {
		secs, err := strconv.ParseFloat(args[0], 64)
		if err != nil || secs < 0 {
			return fmt.Errorf("seconds %q: want a non-negative number", args[0])
		}
		window = time.Duration(secs * float64(time.Second))
		args = args[1:]
	}
	fields, err := parseFields(args)
	if err != nil {
		return err
	}
	criteria := domain.Criteria(fields)

	var deadline time.Time
	if window > 0 {
		deadline = time.Now().Add(window)
	}
	for {
		wait := listenPoll
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				return nil
			}
		}
		msg, err := c.h.Receive(ctx, wait, criteria)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msg != nil {
			fmt.Fprintln(c.out, msg.Summary())
		}
	}
}

func (c *console) pinArgs(args []string, want int) (slot, pin int, err error) {
	if len(args) != want {
		return 0, 0, fmt.Errorf("want %d arguments, got %d", want, len(args))
	}
	slot, err = strconv.Atoi(args[0])
	if err != nil || slot < 1 || slot > c.h.Slots() {
		return 0, 0, fmt.Errorf("slot %q: want 1..%d", args[0], c.h.Slots())
	}
	pin, err = strconv.Atoi(args[1])
	if err != nil || pin < 0 || pin > 1 {
		return 0, 0, fmt.Errorf("pin %q: want 0 or 1", args[1])
	}
	return slot, pin, nil
}

// parseFields turns key=value pairs into message fields. Values that parse
// as integers (including 0x hex) become int64; everything else stays a string.
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("field %q: want key=value", a)
		}
		if n, err := strconv.ParseInt(v, 0, 64); err == nil {
			fields[k] = n
		} else if f, err := strconv.ParseFloat(v, 64); err == nil && k == domain.KeyTime {
			fields[k] = f
		} else {
			fields[k] = v
		}
	}
	return fields, nil
}

func listPorts(w io.Writer, list serialport.Lister) error {
	ports, err := list()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tUSB ID\tSERIAL\tPRODUCT")
	for _, p := range ports {
		id := "-"
		if p.USB {
			id = p.VID + ":" + p.PID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, id, orDash(p.SerialNumber), orDash(p.Product))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
