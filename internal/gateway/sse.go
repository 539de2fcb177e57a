package gateway

import (
	"fmt"
	"io"
	"strings"
)

const doneData = `{"finished":true}`

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// writeData writes text as one SSE message. Multi-line text is split so that
// each segment gets its own "data:" line. CR and CRLF count as line breaks.
func writeData(w io.Writer, text string) error {
	for seg := range strings.SplitSeq(lineBreaks.Replace(text), "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := io.WriteString(w, "\n")
	return err
}

// writeEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeEvent(w io.Writer, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	return writeData(w, data)
}

// writeHeartbeat writes an SSE comment that clients ignore.
func writeHeartbeat(w io.Writer) error {
	_, err := io.WriteString(w, ": heartbeat\n\n")
	return err
}
