package bridge

import (
	"fmt"
	"strings"

	"github.com/gerritbridge/project/internal/gerrit"
)

type Command string

const (
	CommandEnable  Command = "enable"
	CommandDisable Command = "disable"
	CommandStatus  Command = "status"
	CommandHelp    Command = "help"
	CommandUnknown Command = "unknown"
)

const helpText = "I relay Gerrit review notifications to you.\n\n" +
	"* `enable` — receive notifications\n" +
	"* `disable` — stop receiving notifications\n" +
	"* `status` — show your current setting\n" +
	"* `help` — this message"

// ParseCommand reads the first word of a message as a command.
func ParseCommand(text string) Command {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return CommandUnknown
	}
	switch Command(fields[0]) {
	case CommandEnable, CommandDisable, CommandStatus, CommandHelp:
		return Command(fields[0])
	}
	return CommandUnknown
}

// FormatEvent renders an event as a markdown chat message. An empty result
// means there is nothing worth notifying about.
func FormatEvent(ev *gerrit.Event) string {
	switch ev.Type {
	case gerrit.ReviewerAdded:
		return fmt.Sprintf("You were added as a reviewer on [%s](%s).",
			ev.Change.Subject, ev.Change.URL)
	case gerrit.CommentAdded:
		return formatCommentAdded(ev)
	}
	return ""
}

func formatCommentAdded(ev *gerrit.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s](%s)", ev.Change.Subject, ev.Change.URL)
	if actor := eventActor(ev); actor != nil {
		fmt.Fprintf(&b, " reviewed by %s", displayName(actor))
	}

	var details []string
	for _, approval := range ev.Approvals {
		if approval.Value == "0" || approval.Value == "" {
			continue
		}
		details = append(details, fmt.Sprintf("%s %s", approval.Type, signedValue(approval.Value)))
	}
	if len(details) > 0 {
		b.WriteString("\n\n**")
		b.WriteString(strings.Join(details, ", "))
		b.WriteString("**")
	}

	if comment := strings.TrimSpace(ev.Comment); comment != "" {
		b.WriteString("\n\n")
		b.WriteString(comment)
	}

	for _, inline := range ev.PatchSet.Comments {
		fmt.Fprintf(&b, "\n> `%s:%d`: %s", inline.File, inline.Line, inline.Message)
	}

	// A bare comment-added with no score and no text carries no signal.
	if len(details) == 0 && strings.TrimSpace(ev.Comment) == "" && len(ev.PatchSet.Comments) == 0 {
		return ""
	}
	return b.String()
}

func signedValue(value string) string {
	if strings.HasPrefix(value, "-") || strings.HasPrefix(value, "+") {
		return value
	}
	return "+" + value
}

func displayName(u *gerrit.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
