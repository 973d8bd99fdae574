// Package bridge turns enriched Gerrit events into chat notifications and
// handles the human commands that control them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gerritbridge/project/internal/app/roster"
	"github.com/gerritbridge/project/internal/contracts"
	"github.com/gerritbridge/project/internal/gerrit"
	"github.com/gerritbridge/project/internal/platform/metrics"
	"github.com/gerritbridge/project/internal/spark"
)

var (
	eventsRelayed = metrics.NewCounter(metrics.Opts{
		Name: "bridge_events_relayed_total",
		Help: "Gerrit events delivered as chat messages.",
	})
	eventsSkipped = metrics.NewCounterVec(metrics.Opts{
		Name: "bridge_events_skipped_total",
		Help: "Gerrit events dropped before delivery.",
	}, []string{"reason"})
	commandsHandled = metrics.NewCounterVec(metrics.Opts{
		Name: "bridge_commands_handled_total",
		Help: "Inbound chat commands processed.",
	}, []string{"command"})
)

func init() {
	metrics.Default.MustRegister(eventsRelayed, eventsSkipped, commandsHandled)
}

// Chat is the outbound surface of the chat platform the bridge needs.
type Chat interface {
	Post(personID, markdown string) error
	GetMessage(id string) (spark.Message, error)
}

type Service struct {
	Chat   Chat
	Roster roster.Repository

	// BotID filters out the bot's own messages echoed back by webhooks.
	BotID string
}

func NewService(chat Chat, repo roster.Repository, botID string) *Service {
	return &Service{Chat: chat, Roster: repo, BotID: botID}
}

// NeedsInfo is the enrichment policy: comment text may reference inline
// comments that only a --comments query reveals, and approvals are only
// meaningful next to the submit records.
func NeedsInfo(ev *gerrit.Event) []gerrit.ExtendedInfo {
	if ev.Type != gerrit.CommentAdded {
		return nil
	}
	var info []gerrit.ExtendedInfo
	if len(ev.Approvals) > 0 {
		info = append(info, gerrit.SubmitRecords)
	}
	if ev.Comment != "" {
		info = append(info, gerrit.InlineComments)
	}
	return info
}

// HandleEvent relays one event to its recipient, if that recipient is
// subscribed. Events about one's own activity are dropped.
func (s *Service) HandleEvent(ctx context.Context, ev gerrit.Event) error {
	recipient := eventRecipient(&ev)
	if recipient.Email == "" {
		eventsSkipped.Inc("no_recipient")
		return nil
	}
	if actor := eventActor(&ev); actor != nil && actor.Username == recipient.Username {
		eventsSkipped.Inc("self")
		return nil
	}

	text := FormatEvent(&ev)
	if text == "" {
		eventsSkipped.Inc("empty")
		return nil
	}

	sub, err := s.Roster.FindByEmail(ctx, recipient.Email)
	if errors.Is(err, roster.ErrNotFound) {
		eventsSkipped.Inc("not_subscribed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up subscription for %s: %w", recipient.Email, err)
	}
	if !sub.Enabled {
		eventsSkipped.Inc("disabled")
		return nil
	}

	if err := s.Chat.Post(sub.PersonID, text); err != nil {
		return fmt.Errorf("notify %s: %w", recipient.Username, err)
	}
	eventsRelayed.Inc()
	return nil
}

// HandleMessage processes one inbound chat message: loads its text, parses
// the command and replies.
func (s *Service) HandleMessage(ctx context.Context, msg contracts.InboundMessage) error {
	if msg.PersonID == s.BotID {
		return nil
	}

	full, err := s.Chat.GetMessage(msg.MessageID)
	if err != nil {
		return fmt.Errorf("load message %s: %w", msg.MessageID, err)
	}

	command := ParseCommand(full.Text)
	commandsHandled.Inc(string(command))

	var reply string
	switch command {
	case CommandEnable:
		err = s.Roster.Upsert(ctx, roster.Subscription{
			PersonID: msg.PersonID,
			Email:    msg.PersonEmail,
			Enabled:  true,
		})
		reply = "Got it! You will now receive review notifications."
	case CommandDisable:
		// An existing row only needs its flag flipped. Disabling before ever
		// enabling still records the person so status has something to report.
		err = s.Roster.SetEnabled(ctx, msg.PersonID, false)
		if errors.Is(err, roster.ErrNotFound) {
			err = s.Roster.Upsert(ctx, roster.Subscription{
				PersonID: msg.PersonID,
				Email:    msg.PersonEmail,
				Enabled:  false,
			})
		}
		reply = "Okay, review notifications are off."
	case CommandStatus:
		reply = s.statusReply(ctx, msg.PersonID)
	default:
		reply = helpText
	}
	if err != nil {
		return fmt.Errorf("update subscription for %s: %w", msg.PersonEmail, err)
	}

	if err := s.Chat.Post(msg.PersonID, reply); err != nil {
		log.Printf("could not reply to %s: %v", msg.PersonEmail, err)
	}
	return nil
}

func (s *Service) statusReply(ctx context.Context, personID string) string {
	sub, err := s.Roster.FindByPersonID(ctx, personID)
	switch {
	case errors.Is(err, roster.ErrNotFound):
		return "You are not set up yet. Say `enable` to receive review notifications."
	case err != nil:
		log.Printf("status lookup failed for %s: %v", personID, err)
		return "Sorry, I could not look up your subscription right now."
	case sub.Enabled:
		return "Review notifications are **enabled** for " + sub.Email + "."
	}
	return "Review notifications are **disabled** for " + sub.Email + "."
}

// eventRecipient is the user a notification is addressed to: the added
// reviewer for reviewer-added, the change owner otherwise.
func eventRecipient(ev *gerrit.Event) gerrit.User {
	if ev.Type == gerrit.ReviewerAdded && ev.Reviewer != nil {
		return *ev.Reviewer
	}
	return ev.Change.Owner
}

// eventActor is whoever caused the event.
func eventActor(ev *gerrit.Event) *gerrit.User {
	if ev.Author != nil {
		return ev.Author
	}
	return ev.Uploader
}
