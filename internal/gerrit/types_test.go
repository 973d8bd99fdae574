package gerrit

import (
	"encoding/json"
	"testing"
)

const commentAddedLine = `{
	"type": "comment-added",
	"author": {"name": "Jane Reviewer", "username": "jane", "email": "jane@example.com"},
	"approvals": [{"type": "Code-Review", "description": "Code-Review", "value": "2"}],
	"comment": "Looks good to me.",
	"patchSet": {"number": 1, "revision": "abc123", "parents": ["def456"], "ref": "refs/changes/01/1/1",
		"uploader": {"username": "owner"}, "createdOn": 1700000000, "author": {"username": "owner"},
		"isDraft": false, "kind": "REWORK", "sizeInsertions": 10, "sizeDeletions": 2},
	"change": {"project": "demo", "branch": "master", "id": "I1", "number": 1, "subject": "Fix the thing",
		"owner": {"username": "owner", "email": "owner@example.com"}, "url": "https://gerrit.example.com/1",
		"commitMessage": "Fix the thing\n", "status": "NEW"},
	"project": "demo",
	"refName": "refs/heads/master",
	"changeKey": {"id": "I1"},
	"eventCreatedOn": 1700000100
}`

func TestDecodeCommentAddedEvent(t *testing.T) {
	var ev Event
	if err := json.Unmarshal([]byte(commentAddedLine), &ev); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ev.Type != CommentAdded {
		t.Fatalf("unexpected event type: %q", ev.Type)
	}
	if ev.Change.ID != "I1" || ev.Change.Status != StatusNew {
		t.Fatalf("unexpected change: %+v", ev.Change)
	}
	if ev.PatchSet.Number != 1 || ev.PatchSet.Revision != "abc123" {
		t.Fatalf("unexpected patch set: %+v", ev.PatchSet)
	}
	if ev.Author == nil || ev.Author.Username != "jane" {
		t.Fatalf("unexpected author: %+v", ev.Author)
	}
	if len(ev.Approvals) != 1 || ev.Approvals[0].Value != "2" {
		t.Fatalf("unexpected approvals: %+v", ev.Approvals)
	}
}

func TestDecodeRejectsOtherEventTypes(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte(`{"type": "merge-failed", "project": "demo"}`), &ev)
	if err == nil {
		t.Fatal("expected decode of merge-failed to fail")
	}
}

func TestDecodeRejectsEventWithoutChange(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte(`{"type": "comment-added"}`), &ev)
	if err == nil {
		t.Fatal("expected decode without change snapshot to fail")
	}
	if ev.Change.ID != "" || ev.PatchSet.Number != 0 {
		t.Fatalf("rejected decode mutated event: %+v", ev)
	}
}

func TestDecodeRejectsEventWithoutPatchSet(t *testing.T) {
	var ev Event
	line := `{"type": "reviewer-added", "change": {"id": "I1", "status": "NEW"}, "reviewer": {"username": "jane"}}`
	if err := json.Unmarshal([]byte(line), &ev); err == nil {
		t.Fatal("expected decode without patch set snapshot to fail")
	}
}

func TestDecodeRejectsUnknownChangeStatus(t *testing.T) {
	var change Change
	err := json.Unmarshal([]byte(`{"project": "demo", "status": "SUBMITTED"}`), &change)
	if err == nil {
		t.Fatal("expected decode of unknown status to fail")
	}
}

func TestUserStringIsUsername(t *testing.T) {
	u := User{Name: "Jane Reviewer", Username: "jane"}
	if u.String() != "jane" {
		t.Fatalf("unexpected user string: %q", u.String())
	}
}
