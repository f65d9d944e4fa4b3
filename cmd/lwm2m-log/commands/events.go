package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/sbernard31/lualwm2m/pkg/log"
)

// eachEvent opens path and calls fn for every event passing filter.
func eachEvent(path string, filter log.Filter, fn func(log.Event) error) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// eventKind names the payload an event carries.
func eventKind(event log.Event) string {
	switch {
	case event.Datagram != nil:
		return "Datagram"
	case event.Message != nil:
		return event.Message.Type.String()
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}
