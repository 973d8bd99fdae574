package gerrit

import (
	"bufio"
	"encoding/json"
	"log"
	"sync"
)

// streamEventsCommand subscribes to exactly the event classes the bridge
// handles; everything else is filtered server-side.
const streamEventsCommand = "gerrit stream-events -s comment-added -s reviewer-added"

// EventStream is an ordered sequence of events produced by the feed worker.
// The channel stays open for the life of the process in healthy operation;
// it closes only after a terminal failure, which Err then reports.
type EventStream struct {
	events chan Event

	mu  sync.Mutex
	err error
}

// C returns the event channel. Events arrive in the order their source
// lines were read.
func (s *EventStream) C() <-chan Event {
	return s.events
}

// Err returns the terminal error after C is closed, nil before that.
func (s *EventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *EventStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type lineResult struct {
	line string
	err  *StreamError
}

// Events takes ownership of conn and produces the live event sequence,
// surviving mid-stream connection drops transparently. Failure to open the
// exec channel or start the streaming command is fatal for the feed.
func Events(conn *Conn) *EventStream {
	s := &EventStream{events: make(chan Event, 1)}
	go s.decodeLines(streamLines(conn))
	return s
}

// streamLines runs the feed state machine on a dedicated goroutine,
// publishing raw lines through a capacity-1 channel. The blocking send is
// the backpressure: a slow consumer stalls the SSH read, not the process.
func streamLines(conn *Conn) <-chan lineResult {
	out := make(chan lineResult, 1)

	go func() {
		defer close(out)

		first := true
		for {
			if !first {
				if err := conn.ReconnectRepeatedly(); err != nil {
					out <- lineResult{err: terminatedError("reconnect failed permanently: %v", err)}
					return
				}
			}
			first = false

			sess, err := conn.client.NewSession()
			if err != nil {
				out <- lineResult{err: terminatedError("could not open SSH channel: %v", err)}
				return
			}
			stdout, err := sess.StdoutPipe()
			if err != nil {
				_ = sess.Close()
				out <- lineResult{err: terminatedError("could not attach to SSH channel: %v", err)}
				return
			}
			if err := sess.Start(streamEventsCommand); err != nil {
				_ = sess.Close()
				out <- lineResult{err: terminatedError("could not execute %q: %v", streamEventsCommand, err)}
				return
			}
			log.Printf("connected to gerrit event stream")

			scanner := bufio.NewScanner(stdout)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				out <- lineResult{line: scanner.Text()}
			}

			// A read failure, or the server closing the stream, drops the
			// connection and goes back around through the reconnect policy.
			if err := scanner.Err(); err != nil {
				log.Printf("%v, reconnecting", &StreamError{kind: streamErrIO, cause: err})
			} else {
				log.Printf("gerrit event stream closed, reconnecting")
			}
			_ = sess.Close()
		}
	}()

	return out
}

// decodeLines turns raw lines into typed events. Lines that do not decode,
// including any event type outside the accepted two, are dropped; they
// neither reach the consumer nor terminate the feed.
func (s *EventStream) decodeLines(lines <-chan lineResult) {
	defer close(s.events)

	for res := range lines {
		if res.err != nil {
			s.setErr(res.err)
			return
		}

		var ev Event
		if err := json.Unmarshal([]byte(res.line), &ev); err != nil {
			log.Printf("dropping gerrit event line: %v", &StreamError{kind: streamErrParse, cause: err})
			continue
		}
		s.events <- ev
	}
}
