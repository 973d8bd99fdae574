package gerrit

import (
	"io"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
)

type fakeSession struct {
	stdout   io.Reader
	pipeErr  error
	startErr error
	waitErr  error
	echo     bool

	command string
	closed  bool
}

func (s *fakeSession) StdoutPipe() (io.Reader, error) {
	if s.pipeErr != nil {
		return nil, s.pipeErr
	}
	if s.echo {
		return &echoReader{session: s}, nil
	}
	return s.stdout, nil
}

func (s *fakeSession) Start(command string) error {
	s.command = command
	return s.startErr
}

func (s *fakeSession) Wait() error {
	return s.waitErr
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// echoReader yields the command given to Start. The pipe is attached before
// Start runs but only read afterwards, matching the real session flow.
type echoReader struct {
	session *fakeSession
	inner   io.Reader
}

func (r *echoReader) Read(p []byte) (int, error) {
	if r.inner == nil {
		r.inner = strings.NewReader(r.session.command)
	}
	return r.inner.Read(p)
}

type fakeClient struct {
	mu       sync.Mutex
	sessions []*fakeSession
	err      error
	executed []string
	closed   bool
}

func (c *fakeClient) NewSession() (sshSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if len(c.sessions) == 0 {
		return nil, io.EOF
	}
	sess := c.sessions[0]
	c.sessions = c.sessions[1:]
	return recordingSession{inner: sess, client: c}, nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.executed...)
}

// recordingSession appends each started command to the owning client so
// tests can assert execution order.
type recordingSession struct {
	inner  *fakeSession
	client *fakeClient
}

func (s recordingSession) StdoutPipe() (io.Reader, error) { return s.inner.StdoutPipe() }

func (s recordingSession) Start(command string) error {
	s.client.mu.Lock()
	s.client.executed = append(s.client.executed, command)
	s.client.mu.Unlock()
	return s.inner.Start(command)
}

func (s recordingSession) Wait() error  { return s.inner.Wait() }
func (s recordingSession) Close() error { return s.inner.Close() }

func testConn(client sshClient, dial dialFunc) *Conn {
	return &Conn{
		client:     client,
		addr:       "gerrit.test:29418",
		username:   "bot",
		keyPath:    "testdata/id_test",
		dial:       dial,
		newBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

// errorReader fails after its prefix is consumed, simulating a connection
// drop mid-stream.
type errorReader struct {
	prefix io.Reader
	err    error
}

func (r *errorReader) Read(p []byte) (int, error) {
	n, err := r.prefix.Read(p)
	if err == io.EOF {
		return n, r.err
	}
	return n, err
}

// blockingReader never returns, simulating a healthy but idle stream.
type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	<-make(chan struct{})
	return 0, nil
}
