package gerrit

import (
	"encoding/json"
	"fmt"
)

// User is a Gerrit account as it appears in stream-events payloads.
// Accounts are identified by username; name and email may be absent.
type User struct {
	Name     string `json:"name,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

func (u User) String() string {
	return u.Username
}

type Approval struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Value       string `json:"value"`
	OldValue    string `json:"oldValue,omitempty"`
}

type InlineComment struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Reviewer User   `json:"reviewer"`
	Message  string `json:"message"`
}

type PatchSet struct {
	Number         int             `json:"number"`
	Revision       string          `json:"revision"`
	Parents        []string        `json:"parents"`
	Ref            string          `json:"ref"`
	Uploader       User            `json:"uploader"`
	CreatedOn      int64           `json:"createdOn"`
	Author         User            `json:"author"`
	IsDraft        bool            `json:"isDraft"`
	Kind           string          `json:"kind"`
	SizeInsertions int             `json:"sizeInsertions"`
	SizeDeletions  int             `json:"sizeDeletions"`

	// Populated only by a query with --comments, never by the live stream.
	Comments []InlineComment `json:"comments,omitempty"`
}

type ChangeStatus string

const (
	StatusNew       ChangeStatus = "NEW"
	StatusDraft     ChangeStatus = "DRAFT"
	StatusMerged    ChangeStatus = "MERGED"
	StatusAbandoned ChangeStatus = "ABANDONED"
)

func (s *ChangeStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch ChangeStatus(raw) {
	case StatusNew, StatusDraft, StatusMerged, StatusAbandoned:
		*s = ChangeStatus(raw)
		return nil
	}
	return fmt.Errorf("unknown change status %q", raw)
}

type SubmitStatus string

const (
	SubmitOK        SubmitStatus = "OK"
	SubmitNotReady  SubmitStatus = "NOT_READY"
	SubmitRuleError SubmitStatus = "RULE_ERROR"
)

type SubmitRecord struct {
	Status SubmitStatus `json:"status"`
}

type Comment struct {
	Timestamp int64  `json:"timestamp"`
	Reviewer  User   `json:"reviewer"`
	Message   string `json:"message"`
}

type Change struct {
	Project       string       `json:"project"`
	Branch        string       `json:"branch"`
	ID            string       `json:"id"`
	Number        int          `json:"number"`
	Subject       string       `json:"subject"`
	Topic         string       `json:"topic,omitempty"`
	Owner         User         `json:"owner"`
	URL           string       `json:"url"`
	CommitMessage string       `json:"commitMessage"`
	Status        ChangeStatus `json:"status"`

	// The stream carries at most the current patch set; full patch set,
	// comment and submit record lists come from an enrichment query.
	CurrentPatchSet *PatchSet      `json:"currentPatchSet,omitempty"`
	PatchSets       []PatchSet     `json:"patchSets,omitempty"`
	Comments        []Comment      `json:"comments,omitempty"`
	SubmitRecords   []SubmitRecord `json:"submitRecords,omitempty"`
}

// ChangeKey is the stable identifier of a change across patch sets.
type ChangeKey struct {
	ID string `json:"id"`
}

// EventType accepts exactly the event classes the bridge subscribes to.
// Decoding any other type fails, which makes the stream decode stage drop
// the whole line.
type EventType string

const (
	CommentAdded  EventType = "comment-added"
	ReviewerAdded EventType = "reviewer-added"
)

func (t *EventType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch EventType(raw) {
	case CommentAdded, ReviewerAdded:
		*t = EventType(raw)
		return nil
	}
	return fmt.Errorf("unsupported event type %q", raw)
}

// Event is one structured notification decoded from a single line of the
// gerrit stream-events output. Events are not mutated after decoding except
// by the enrichment stage, which replaces PatchSet and Change.SubmitRecords.
type Event struct {
	Author    *User      `json:"author,omitempty"`
	Uploader  *User      `json:"uploader,omitempty"`
	Approvals []Approval `json:"approvals,omitempty"`
	Reviewer  *User      `json:"reviewer,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	PatchSet  PatchSet   `json:"patchSet"`
	Change    Change     `json:"change"`
	Project   string     `json:"project"`
	RefName   string     `json:"refName"`
	ChangeKey ChangeKey  `json:"changeKey"`
	Type      EventType  `json:"type"`
	CreatedOn int64      `json:"eventCreatedOn"`
}

// UnmarshalJSON requires the change and patch set snapshots. Every line the
// stream command emits for the accepted event types carries both, so a
// payload without them is malformed and must not reach consumers.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Change.ID == "" {
		return fmt.Errorf("%s event without change snapshot", raw.Type)
	}
	if raw.PatchSet.Revision == "" {
		return fmt.Errorf("%s event without patch set snapshot", raw.Type)
	}
	*e = Event(raw)
	return nil
}
