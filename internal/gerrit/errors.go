package gerrit

import "fmt"

type streamErrorKind int

const (
	streamErrIO streamErrorKind = iota
	streamErrParse
	streamErrTerminated
)

// StreamError classifies failures inside the event feed. IO and parse
// failures are handled locally (reconnect, drop); only Terminated reaches
// the consumer, delivered exactly once when the feed stops for good.
type StreamError struct {
	kind   streamErrorKind
	reason string
	cause  error
}

func (e *StreamError) Error() string {
	switch e.kind {
	case streamErrIO:
		return fmt.Sprintf("stream read failed: %v", e.cause)
	case streamErrParse:
		return fmt.Sprintf("stream parse failed: %v", e.cause)
	}
	return "stream terminated: " + e.reason
}

func (e *StreamError) Unwrap() error {
	return e.cause
}

// Terminated reports whether the feed has permanently stopped.
func (e *StreamError) Terminated() bool {
	return e.kind == streamErrTerminated
}

func terminatedError(format string, args ...any) *StreamError {
	return &StreamError{kind: streamErrTerminated, reason: fmt.Sprintf(format, args...)}
}
