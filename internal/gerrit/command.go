package gerrit

import (
	"errors"
	"fmt"
	"io"
	"log"
)

// ErrRunnerStopped is returned by RunCommand after the runner's worker has
// exited. The worker only exits if the reconnect policy reports a permanent
// failure, which the default policy never does.
var ErrRunnerStopped = errors.New("command runner stopped")

type commandResult struct {
	output string
	err    error
}

type commandRequest struct {
	command string
	// reply is buffered with capacity 1 and written to exactly once, so
	// the worker never blocks on a caller that stopped waiting.
	reply chan commandResult
}

// CommandRunner serializes ad hoc query commands over a dedicated
// connection. Requests pass through a capacity-1 channel to a single worker
// goroutine, so at most one command is in flight and a second caller blocks
// until the worker takes the first request. The runner shares no session
// state with the event feed.
type CommandRunner struct {
	requests chan commandRequest
	done     chan struct{}
}

// NewCommandRunner takes ownership of conn and starts the worker. The
// worker runs for the lifetime of the process.
func NewCommandRunner(conn *Conn) *CommandRunner {
	r := &CommandRunner{
		requests: make(chan commandRequest, 1),
		done:     make(chan struct{}),
	}
	go r.run(conn)
	return r
}

// RunCommand executes a command on the review server, returning its stdout
// on exit status 0 and an error otherwise. There is no timeout: a hung
// server command blocks the worker, and every later caller, indefinitely.
func (r *CommandRunner) RunCommand(command string) (string, error) {
	req := commandRequest{command: command, reply: make(chan commandResult, 1)}

	select {
	case r.requests <- req:
	case <-r.done:
		return "", ErrRunnerStopped
	}

	select {
	case result := <-req.reply:
		return result.output, result.err
	case <-r.done:
		return "", ErrRunnerStopped
	}
}

func (r *CommandRunner) run(conn *Conn) {
	defer close(r.done)

	healthy := true
	for req := range r.requests {
		var result commandResult

		for {
			if !healthy {
				log.Printf("gerrit command runner reconnecting")
				if err := conn.ReconnectRepeatedly(); err != nil {
					// The policy retries indefinitely; reaching this point
					// violates that invariant, so the worker stops.
					log.Printf("gerrit command runner reconnect failed permanently: %v", err)
					return
				}
				healthy = true
			}

			sess, err := conn.client.NewSession()
			if err != nil {
				// Retried from the top without consuming the request.
				log.Printf("failed to open gerrit command channel: %v", err)
				healthy = false
				continue
			}

			result = runSession(sess, req.command)
			break
		}

		req.reply <- result
	}
}

// runSession tries the exec/read/close pipeline exactly once. Failures past
// the channel-open step are the command's own failure, not a health issue.
func runSession(sess sshSession, command string) commandResult {
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return commandResult{err: fmt.Errorf("attach to command output: %w", err)}
	}
	if err := sess.Start(command); err != nil {
		return commandResult{err: fmt.Errorf("request exec channel: %w", err)}
	}

	data, err := io.ReadAll(stdout)
	if err != nil {
		return commandResult{err: fmt.Errorf("read from command channel: %w", err)}
	}

	if err := sess.Wait(); err != nil {
		var exitErr *exitStatusError
		if errors.As(err, &exitErr) {
			return commandResult{err: exitErr}
		}
		return commandResult{err: fmt.Errorf("close command channel: %w", err)}
	}
	return commandResult{output: string(data)}
}
