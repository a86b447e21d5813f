package stream

import (
	"bufio"
	"fmt"
)

// WriteFrame writes one push-event frame in the wire format the UI consumes:
// a data: line carrying the JSON event, terminated by a blank line, flushed
// immediately.
func WriteFrame(w *bufio.Writer, frame []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
		return err
	}
	return w.Flush()
}

// Relay copies a subscriber's frames to w until the stream ends or the
// client goes away. The caller owns the subscription.
func Relay(w *bufio.Writer, sub *Subscriber) {
	for frame := range sub.Send {
		if err := WriteFrame(w, frame); err != nil {
			return
		}
	}
}
