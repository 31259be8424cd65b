// Package monitor is the operator terminal for a bench run: decoded bus
// traffic in the upper two thirds, test progress below.
package monitor

import "warrior/internal/domain"

// BusFrameMsg carries one formatted bus message.
type BusFrameMsg struct {
	Text string
}

// LogLineMsg carries one progress line.
type LogLineMsg struct {
	Text string
}

// EventBusMsg wraps a domain.Event from the EventBus subscription.
type EventBusMsg struct {
	Event domain.Event
}
