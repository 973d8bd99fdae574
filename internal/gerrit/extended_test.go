package gerrit

import (
	"io"
	"strings"
	"testing"
)

const queryResult = `{"project":"demo","branch":"master","id":"I1","number":1,"subject":"Fix the thing",` +
	`"owner":{"username":"owner"},"url":"https://gerrit.example.com/1","commitMessage":"Fix the thing\n",` +
	`"status":"NEW","patchSets":[` +
	`{"number":1,"revision":"abc123","comments":[{"file":"main.go","line":3,"reviewer":{"username":"jane"},"message":"typo"}]},` +
	`{"number":2,"revision":"def456"}],` +
	`"submitRecords":[{"status":"NOT_READY"}]}` + "\n" +
	`{"type":"stats","rowCount":1}` + "\n"

func queryRunner(t *testing.T, output string) (*CommandRunner, *fakeClient) {
	t.Helper()
	client := &fakeClient{sessions: []*fakeSession{{stdout: strings.NewReader(output)}}}
	return NewCommandRunner(testConn(client, nil)), client
}

func testEvent() *Event {
	return &Event{
		Type:     CommentAdded,
		PatchSet: PatchSet{Number: 1, Revision: "abc123"},
		Change:   Change{ID: "I1", Status: StatusNew},
	}
}

func TestFetchExtendedInfoEmptySetSkipsQuery(t *testing.T) {
	ev := testEvent()
	// A nil runner proves no command is issued for an empty flag set.
	if err := FetchExtendedInfo(nil, ev, nil); err != nil {
		t.Fatalf("FetchExtendedInfo returned error: %v", err)
	}
	if len(ev.PatchSet.Comments) != 0 || ev.Change.SubmitRecords != nil {
		t.Fatalf("event was modified without a query: %+v", ev)
	}
}

func TestFetchExtendedInfoBuildsQuery(t *testing.T) {
	runner, client := queryRunner(t, queryResult)
	ev := testEvent()

	if err := FetchExtendedInfo(runner, ev, []ExtendedInfo{SubmitRecords, InlineComments}); err != nil {
		t.Fatalf("FetchExtendedInfo returned error: %v", err)
	}

	executed := client.commands()
	if len(executed) != 1 {
		t.Fatalf("expected one query, got %v", executed)
	}
	want := "gerrit query --format=JSON --submit-records --patch-sets --comments change:I1"
	if executed[0] != want {
		t.Fatalf("unexpected query:\n got %q\nwant %q", executed[0], want)
	}
}

func TestFetchExtendedInfoReplacesMatchingPatchSet(t *testing.T) {
	runner, _ := queryRunner(t, queryResult)
	ev := testEvent()

	if err := FetchExtendedInfo(runner, ev, []ExtendedInfo{InlineComments}); err != nil {
		t.Fatalf("FetchExtendedInfo returned error: %v", err)
	}
	if len(ev.PatchSet.Comments) != 1 || ev.PatchSet.Comments[0].File != "main.go" {
		t.Fatalf("patch set was not replaced with the richer entry: %+v", ev.PatchSet)
	}
	if len(ev.Change.SubmitRecords) != 1 || ev.Change.SubmitRecords[0].Status != SubmitNotReady {
		t.Fatalf("submit records were not copied: %+v", ev.Change.SubmitRecords)
	}
}

func TestFetchExtendedInfoKeepsPatchSetWithoutMatch(t *testing.T) {
	runner, _ := queryRunner(t, queryResult)
	ev := testEvent()
	ev.PatchSet = PatchSet{Number: 7, Revision: "orig"}

	if err := FetchExtendedInfo(runner, ev, []ExtendedInfo{InlineComments}); err != nil {
		t.Fatalf("FetchExtendedInfo returned error: %v", err)
	}
	if ev.PatchSet.Number != 7 || ev.PatchSet.Revision != "orig" {
		t.Fatalf("patch set without a number match must stay untouched: %+v", ev.PatchSet)
	}
}

func TestFetchExtendedInfoQueryFailure(t *testing.T) {
	client := &fakeClient{sessions: []*fakeSession{{
		stdout:  strings.NewReader(""),
		waitErr: &exitStatusError{status: 1},
	}}}
	runner := NewCommandRunner(testConn(client, nil))

	err := FetchExtendedInfo(runner, testEvent(), []ExtendedInfo{SubmitRecords})
	if err == nil || err.Error() != "command exited with status 1" {
		t.Fatalf("expected exit status error, got %v", err)
	}
}

func TestFetchExtendedInfoUndecodableResult(t *testing.T) {
	runner, _ := queryRunner(t, "not json at all\n")

	err := FetchExtendedInfo(runner, testEvent(), []ExtendedInfo{SubmitRecords})
	if err == nil || !strings.Contains(err.Error(), "decode query result") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestExtendedEventsEnrichesAndForwards(t *testing.T) {
	streamClient := &fakeClient{sessions: []*fakeSession{{
		stdout: io.MultiReader(strings.NewReader(eventLine("I1", 1)+"\n"), blockingReader{}),
	}}}
	commandClient := &fakeClient{sessions: []*fakeSession{{stdout: strings.NewReader(queryResult)}}}

	policy := func(ev *Event) []ExtendedInfo {
		if ev.Type == CommentAdded {
			return []ExtendedInfo{SubmitRecords, InlineComments}
		}
		return nil
	}
	s := ExtendedEvents(testConn(streamClient, nil), testConn(commandClient, nil), policy)

	ev := receiveEvent(t, s)
	if ev.Change.ID != "I1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.PatchSet.Comments) != 1 {
		t.Fatalf("event was not enriched: %+v", ev.PatchSet)
	}
	if len(ev.Change.SubmitRecords) != 1 {
		t.Fatalf("submit records missing: %+v", ev.Change)
	}
}

func TestExtendedEventsForwardsUnenrichedOnQueryFailure(t *testing.T) {
	streamClient := &fakeClient{sessions: []*fakeSession{{
		stdout: io.MultiReader(strings.NewReader(eventLine("I1", 1)+"\n"), blockingReader{}),
	}}}
	commandClient := &fakeClient{sessions: []*fakeSession{{
		stdout:  strings.NewReader(""),
		waitErr: &exitStatusError{status: 1},
	}}}

	s := ExtendedEvents(testConn(streamClient, nil), testConn(commandClient, nil),
		func(*Event) []ExtendedInfo { return []ExtendedInfo{SubmitRecords} })

	ev := receiveEvent(t, s)
	if ev.Change.ID != "I1" || ev.Change.SubmitRecords != nil {
		t.Fatalf("expected the original event unenriched, got %+v", ev)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("enrichment failure must not end the stream: %v", err)
	}
}
