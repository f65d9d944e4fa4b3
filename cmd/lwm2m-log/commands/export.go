package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sbernard31/lualwm2m/pkg/log"
)

var csvHeader = []string{
	"timestamp", "session_id", "direction", "layer", "category",
	"endpoint", "remote", "type", "message_id", "uri", "status",
}

// RunExport writes the events matching filter to output (stdout when
// empty) as JSON lines or CSV.
func RunExport(path, format, output string, filter log.Filter) error {
	var write func(io.Writer) error
	switch format {
	case "jsonl":
		write = func(w io.Writer) error {
			enc := json.NewEncoder(w)
			return eachEvent(path, filter, func(event log.Event) error {
				return enc.Encode(event)
			})
		}
	case "csv":
		write = func(w io.Writer) error {
			cw := csv.NewWriter(w)
			if err := cw.Write(csvHeader); err != nil {
				return err
			}
			err := eachEvent(path, filter, func(event log.Event) error {
				return cw.Write(csvRow(event))
			})
			cw.Flush()
			if err != nil {
				return err
			}
			return cw.Error()
		}
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	if output == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func csvRow(event log.Event) []string {
	var msgID, uri, status string
	if msg := event.Message; msg != nil {
		msgID = strconv.FormatUint(uint64(msg.MessageID), 10)
		uri = msg.URI
		if msg.Status != nil {
			status = msg.Status.Code()
		}
	}
	return []string{
		event.Timestamp.UTC().Format(timestampLayout),
		event.SessionID,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		event.Endpoint,
		event.RemoteAddr,
		strings.ToLower(eventKind(event)),
		msgID,
		uri,
		status,
	}
}
