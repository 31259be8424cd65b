// Package serialport connects the driver to the tester over USB serial.
package serialport

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"warrior/internal/domain"
	"warrior/internal/infra/config"
)

// Port is an open serial link. A read that times out returns (0, nil).
type Port struct {
	port serial.Port
	name string
}

// Open opens name 8N1 at cfg.Baud with cfg.ReadTimeout.
func Open(name string, cfg config.SerialConfig) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return &Port{port: p, name: name}, nil
}

func (p *Port) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *Port) Close() error                { return p.port.Close() }

// Name returns the device path.
func (p *Port) Name() string { return p.name }

// Info describes an attached serial device.
type Info struct {
	Name         string `json:"name"`
	USB          bool   `json:"usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

func (i Info) matches(needle string) bool {
	needle = strings.ToLower(needle)
	for _, hay := range []string{i.Name, i.Product, i.SerialNumber, i.VID + ":" + i.PID} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

// Lister enumerates attached devices.
type Lister func() ([]Info, error)

// List enumerates the serial ports of this machine.
func List() ([]Info, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	out := make([]Info, 0, len(details))
	for _, d := range details {
		out = append(out, Info{
			Name:         d.Name,
			USB:          d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return out, nil
}

// Find returns the one port whose name, product, serial number or USB id
// contains match, ignoring case.
func Find(list Lister, match string) (string, error) {
	ports, err := list()
	if err != nil {
		return "", err
	}
	var found []string
	for _, p := range ports {
		if p.matches(match) {
			found = append(found, p.Name)
		}
	}
	switch len(found) {
	case 0:
		return "", domain.NewDomainError("serialport.Find", domain.ErrHiltNotFound, "match "+match)
	case 1:
		return found[0], nil
	default:
		return "", domain.NewDomainError("serialport.Find", domain.ErrMultipleHilts, strings.Join(found, ", "))
	}
}

// Resolve picks the configured port, or discovers one by cfg.Match.
func Resolve(list Lister, cfg config.SerialConfig) (string, error) {
	if cfg.Port != "" {
		return cfg.Port, nil
	}
	return Find(list, cfg.Match)
}
