// Package slack is the Socket Mode chat.Transport.
package slack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/chat"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

// Client posts through the Web API and receives messages over Socket Mode.
type Client struct {
	api    *slackapi.Client
	socket *socketmode.Client
	dmOnly bool
	logger *logx.Logger
}

// New needs a bot token (xoxb-) and an app-level token (xapp-) with
// connections:write.
func New(botToken, appToken string, dmOnly bool) (*Client, error) {
	if botToken == "" || appToken == "" {
		return nil, fmt.Errorf("slack bot token and app token are both required")
	}
	api := slackapi.New(botToken, slackapi.OptionAppLevelToken(appToken))
	return &Client{
		api:    api,
		socket: socketmode.New(api),
		dmOnly: dmOnly,
		logger: logx.NewLogger("slack"),
	}, nil
}

// Post replies in the thread when conversationID is set.
func (c *Client) Post(ctx context.Context, channel, text, conversationID string) error {
	opts := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if conversationID != "" {
		opts = append(opts, slackapi.MsgOptionTS(conversationID))
	}
	if _, _, err := c.api.PostMessageContext(ctx, channel, opts...); err != nil {
		return fmt.Errorf("chat.postMessage: %w", err)
	}
	return nil
}

// Upload attaches a local file to the thread with caption as its comment.
func (c *Client) Upload(ctx context.Context, channel, path, caption, conversationID string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", filepath.Base(path))
	}

	name := filepath.Base(path)
	_, err = c.api.UploadFileV2Context(ctx, slackapi.UploadFileV2Parameters{
		Reader:          f,
		FileSize:        int(info.Size()),
		Filename:        name,
		Title:           name,
		InitialComment:  caption,
		Channel:         channel,
		ThreadTimestamp: conversationID,
	})
	if err != nil {
		return fmt.Errorf("files upload: %w", err)
	}
	return nil
}

// Run connects and feeds accepted messages to handle until ctx ends.
// Every Socket Mode request is acknowledged before handling.
func (c *Client) Run(ctx context.Context, handle chat.Handler) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-c.socket.Events:
				if !ok {
					return
				}
				c.dispatch(ctx, evt, handle)
			}
		}
	}()

	if err := c.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("socket mode: %w", err)
	}
	return nil
}

func (c *Client) dispatch(ctx context.Context, evt socketmode.Event, handle chat.Handler) {
	switch evt.Type {
	case socketmode.EventTypeConnected:
		c.logger.Info("connected to Slack")
	case socketmode.EventTypeConnectionError:
		c.logger.Warn("connection error, retrying: %v", evt.Data)
	case socketmode.EventTypeInvalidAuth:
		c.logger.Error("invalid Slack credentials")
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			c.socket.Ack(*evt.Request)
		}
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
		if !ok {
			return
		}
		if ev, accept := FromMessage(msg, c.dmOnly); accept {
			handle(ctx, ev)
		}
	}
}

// FromMessage converts a message event, rejecting bot posts, subtypes
// (edits, joins, file shares), empty text and, with dmOnly, anything outside
// a direct-message channel.
func FromMessage(msg *slackevents.MessageEvent, dmOnly bool) (chat.Event, bool) {
	if msg == nil || msg.BotID != "" || msg.SubType != "" {
		return chat.Event{}, false
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" || msg.Channel == "" {
		return chat.Event{}, false
	}
	if dmOnly && msg.ChannelType != "im" && !strings.HasPrefix(msg.Channel, "D") {
		return chat.Event{}, false
	}
	conversation := msg.ThreadTimeStamp
	if conversation == "" {
		conversation = msg.TimeStamp
	}
	return chat.Event{
		ID:             msg.Channel + ":" + msg.TimeStamp,
		Channel:        msg.Channel,
		Text:           text,
		ConversationID: conversation,
		User:           msg.User,
	}, true
}
