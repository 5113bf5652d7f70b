// Package streamsse parses server-sent event streams from providers that
// deliver incremental results over HTTP.
package streamsse

import (
	"bufio"
	"io"
	"strings"
)

// Event captures one SSE event envelope. Data holds the newline-joined
// payload of all data fields in the event.
type Event struct {
	Event string
	Data  string
}

// Parse reads server-sent events from reader and invokes fn for each complete
// event. Events without a data field are skipped. Parsing stops at the first
// callback error, which is returned as-is.
func Parse(reader io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(reader)
	// Allow moderately large payload lines.
	scanner.Buffer(make([]byte, 0, 4096), 512*1024)

	var eventName string
	var data strings.Builder
	haveData := false

	dispatch := func() error {
		if !haveData {
			eventName = ""
			return nil
		}
		ev := Event{Event: eventName, Data: data.String()}
		eventName = ""
		data.Reset()
		haveData = false
		return fn(ev)
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}
		if line[0] == ':' {
			continue
		}
		field, value := splitField(line)
		switch field {
		case "event":
			eventName = value
		case "data":
			if haveData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			haveData = true
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return dispatch()
}

// splitField separates an SSE field line into name and value. A line without
// a colon is a field with an empty value; one leading space after the colon
// belongs to the delimiter, not the value.
func splitField(line string) (string, string) {
	field, value, ok := strings.Cut(line, ":")
	if !ok {
		return line, ""
	}
	if strings.HasPrefix(value, " ") {
		value = value[1:]
	}
	return field, value
}
