package gerrit

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// sshSession is one exec channel on an SSH connection.
type sshSession interface {
	StdoutPipe() (io.Reader, error)
	Start(command string) error
	Wait() error
	Close() error
}

// sshClient is the subset of *ssh.Client the bridge uses.
type sshClient interface {
	NewSession() (sshSession, error)
	Close() error
}

type dialFunc func(addr, username, keyPath string) (sshClient, error)

// Conn owns one authenticated SSH connection to the review server together
// with the parameters needed to rebuild it. The transport socket and the
// protocol client share a lifetime inside *ssh.Client; neither is ever
// valid without the other. A Conn is owned exclusively by the worker that
// drives it and must not be shared.
type Conn struct {
	client sshClient

	addr     string
	username string
	keyPath  string

	dial       dialFunc
	newBackOff newBackOffFunc
}

// Connect establishes and authenticates a connection. A failure here is
// returned immediately; retrying is reserved for reconnection.
func Connect(addr, username, keyPath string) (*Conn, error) {
	c := &Conn{
		addr:       addr,
		username:   username,
		keyPath:    keyPath,
		dial:       dialSSH,
		newBackOff: defaultBackOff,
	}
	client, err := c.dial(addr, username, keyPath)
	if err != nil {
		return nil, err
	}
	c.client = client
	return c, nil
}

// Reconnect rebuilds the connection in place once. The old client is closed
// and replaced only after the new one is authenticated.
func (c *Conn) Reconnect() error {
	client, err := c.dial(c.addr, c.username, c.keyPath)
	if err != nil {
		return err
	}
	if c.client != nil {
		_ = c.client.Close()
	}
	c.client = client
	return nil
}

// Close releases the connection.
func (c *Conn) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// PublicKeyPath derives the public key path from a private key path by
// substituting the .pub extension.
func PublicKeyPath(privKeyPath string) string {
	return strings.TrimSuffix(privKeyPath, filepath.Ext(privKeyPath)) + ".pub"
}

func dialSSH(addr, username, keyPath string) (sshClient, error) {
	log.Printf("connecting to gerrit at %s (public key %s)", addr, PublicKeyPath(keyPath))

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to gerrit at %s: %w", addr, err)
	}
	return realClient{client}, nil
}

type realClient struct {
	client *ssh.Client
}

func (c realClient) NewSession() (sshSession, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return realSession{sess}, nil
}

func (c realClient) Close() error {
	return c.client.Close()
}

type realSession struct {
	sess *ssh.Session
}

func (s realSession) StdoutPipe() (io.Reader, error) {
	return s.sess.StdoutPipe()
}

func (s realSession) Start(command string) error {
	return s.sess.Start(command)
}

func (s realSession) Wait() error {
	err := s.sess.Wait()
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return &exitStatusError{status: exitErr.ExitStatus()}
	}
	return err
}

func (s realSession) Close() error {
	return s.sess.Close()
}

// exitStatusError reports a remote command that ran to completion with a
// nonzero exit status, as opposed to a transport failure.
type exitStatusError struct {
	status int
}

func (e *exitStatusError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.status)
}
