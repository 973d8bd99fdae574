package gerrit

import (
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
)

// ExtendedInfo selects which extra change detail an enrichment query asks
// the server for.
type ExtendedInfo int

const (
	SubmitRecords ExtendedInfo = iota
	InlineComments
)

// InfoPolicy decides, per event, which extended info to fetch. Returning
// an empty set skips the query entirely.
type InfoPolicy func(*Event) []ExtendedInfo

// ExtendedEvents produces the live event sequence with each event enriched
// according to policy. The command connection is owned by a CommandRunner,
// so enrichment queries are serialized: one in flight at a time. A failed
// enrichment is logged and the event forwarded as it came off the stream;
// only the feed itself can end the sequence.
func ExtendedEvents(streamConn, commandConn *Conn, policy InfoPolicy) *EventStream {
	runner := NewCommandRunner(commandConn)
	inner := Events(streamConn)

	s := &EventStream{events: make(chan Event, 1)}
	go func() {
		defer close(s.events)
		for ev := range inner.C() {
			if err := FetchExtendedInfo(runner, &ev, policy(&ev)); err != nil {
				log.Printf("could not enrich event for change %s: %v", ev.Change.ID, err)
			}
			s.events <- ev
		}
		s.setErr(inner.Err())
	}()
	return s
}

// FetchExtendedInfo queries the server for the requested detail and merges
// it into the event: the event's patch set is replaced by the query's entry
// with the same number, and the change's submit records are copied over.
func FetchExtendedInfo(runner *CommandRunner, ev *Event, info []ExtendedInfo) error {
	if len(info) == 0 {
		return nil
	}

	query := "gerrit query --format=JSON"
	if slices.Contains(info, SubmitRecords) {
		query += " --submit-records"
	}
	if slices.Contains(info, InlineComments) {
		query += " --patch-sets --comments"
	}
	query += " change:" + ev.Change.ID

	output, err := runner.RunCommand(query)
	if err != nil {
		return err
	}

	// The query prints the change on the first line and a stats object on
	// the last.
	line, _, _ := strings.Cut(output, "\n")
	var change Change
	if err := json.Unmarshal([]byte(line), &change); err != nil {
		return fmt.Errorf("decode query result: %w", err)
	}

	for _, ps := range change.PatchSets {
		if ps.Number == ev.PatchSet.Number {
			ev.PatchSet = ps
			break
		}
	}
	ev.Change.SubmitRecords = change.SubmitRecords
	return nil
}
