package commands

import (
	"fmt"

	"github.com/sbernard31/lualwm2m/pkg/log"
)

// RunFilter copies the events matching filter into a new log file and
// returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	out, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", output, err)
	}

	count := 0
	err = eachEvent(path, filter, func(event log.Event) error {
		out.Log(event)
		count++
		return nil
	})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return count, err
}
