package gerrit

import (
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type newBackOffFunc func() backoff.BackOff

// defaultBackOff retries with exponentially increasing, jittered delays and
// never gives up on its own.
func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	return bo
}

// ReconnectRepeatedly rebuilds the connection under the reconnect policy,
// logging each failed attempt. It returns only on success or on a policy
// misconfiguration; with the default policy it blocks until the server is
// reachable again.
func (c *Conn) ReconnectRepeatedly() error {
	return backoff.RetryNotify(c.Reconnect, c.newBackOff(), func(err error, next time.Duration) {
		log.Printf("gerrit reconnect failed (next attempt in %s): %v", next.Round(time.Millisecond), err)
	})
}
