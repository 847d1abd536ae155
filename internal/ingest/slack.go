package ingest

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

// SlackIntake bridges Slack messages into the pipeline over Socket Mode.
// Every channel message the bot can see becomes a submission; extraction
// downstream decides whether it contains tasks.
type SlackIntake struct {
	client   *socketmode.Client
	ingestor *Ingestor
	logger   *slog.Logger
}

// NewSlackIntake builds a Socket Mode intake from a bot token (xoxb-) and an
// app-level token (xapp-).
func NewSlackIntake(botToken, appToken string, ing *Ingestor, logger *slog.Logger) *SlackIntake {
	if logger == nil {
		logger = slog.Default()
	}
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	return &SlackIntake{
		client:   socketmode.New(api),
		ingestor: ing,
		logger:   logger,
	}
}

// Run processes Slack events until ctx is cancelled. It returns the socket
// client's error, which is nil on a clean shutdown.
func (s *SlackIntake) Run(ctx context.Context) error {
	go s.consume(ctx)
	return s.client.RunContext(ctx)
}

func (s *SlackIntake) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.client.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			// Ack before processing; Slack retries unacked envelopes and the
			// pipeline is idempotent downstream anyway.
			if evt.Request != nil {
				s.client.Ack(*evt.Request)
			}
			s.handleEvent(ctx, apiEvent)
		}
	}
}

func (s *SlackIntake) handleEvent(ctx context.Context, apiEvent slackevents.EventsAPIEvent) {
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}
	msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Ignore bot echoes and edits/joins; only fresh user messages count.
	if msg.BotID != "" || msg.SubType != "" || msg.Text == "" {
		return
	}

	in := slackInput(msg)
	id, err := s.ingestor.Submit(ctx, in)
	if err != nil {
		s.logger.Error("slack message rejected", "channel", msg.Channel, "error", err)
		return
	}
	s.logger.Debug("slack message accepted", "message_id", id, "channel", msg.Channel)
}

// slackInput maps a Slack message event to an ingest Input. Threads share a
// conversation with their parent message; top-level messages group by channel.
func slackInput(msg *slackevents.MessageEvent) Input {
	conversation := "slack-" + msg.Channel
	if msg.ThreadTimeStamp != "" {
		conversation += "-" + msg.ThreadTimeStamp
	}
	return Input{
		Source:         model.SourceSlack,
		Text:           msg.Text,
		Author:         msg.User,
		ConversationID: conversation,
		Metadata: map[string]string{
			"slack_channel": msg.Channel,
			"slack_ts":      msg.TimeStamp,
		},
	}
}
