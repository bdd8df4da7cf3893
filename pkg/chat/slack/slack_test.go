package slack

import (
	"strings"
	"testing"

	"github.com/slack-go/slack/slackevents"
	"github.com/stretchr/testify/assert"
)

func TestFromMessage(t *testing.T) {
	tests := []struct {
		name   string
		msg    slackevents.MessageEvent
		dmOnly bool
		accept bool
		convID string
	}{
		{
			name:   "top level DM starts a thread",
			msg:    slackevents.MessageEvent{Channel: "D123", ChannelType: "im", Text: " 台本作って ", TimeStamp: "100.1", User: "U1"},
			dmOnly: true, accept: true, convID: "100.1",
		},
		{
			name:   "thread reply keeps the thread id",
			msg:    slackevents.MessageEvent{Channel: "D123", ChannelType: "im", Text: "2", TimeStamp: "101.5", ThreadTimeStamp: "100.1"},
			dmOnly: true, accept: true, convID: "100.1",
		},
		{
			name: "bot messages are ignored",
			msg:  slackevents.MessageEvent{Channel: "D123", Text: "hi", TimeStamp: "1", BotID: "B1"},
		},
		{
			name: "subtypes are ignored",
			msg:  slackevents.MessageEvent{Channel: "D123", Text: "hi", TimeStamp: "1", SubType: "message_changed"},
		},
		{
			name: "empty text is ignored",
			msg:  slackevents.MessageEvent{Channel: "D123", Text: "   ", TimeStamp: "1"},
		},
		{
			name:   "public channel ignored in DM mode",
			msg:    slackevents.MessageEvent{Channel: "C999", ChannelType: "channel", Text: "hi", TimeStamp: "1"},
			dmOnly: true,
		},
		{
			name:   "public channel accepted otherwise",
			msg:    slackevents.MessageEvent{Channel: "C999", ChannelType: "channel", Text: "hi", TimeStamp: "7.7"},
			accept: true, convID: "7.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			ev, ok := FromMessage(&msg, tt.dmOnly)
			assert.Equal(t, tt.accept, ok)
			if !tt.accept {
				return
			}
			assert.Equal(t, tt.convID, ev.ConversationID)
			assert.Equal(t, msg.Channel+":"+msg.TimeStamp, ev.ID)
			assert.Equal(t, strings.TrimSpace(msg.Text), ev.Text)
		})
	}
}

func TestNewRequiresTokens(t *testing.T) {
	_, err := New("xoxb-x", "", true)
	assert.Error(t, err)
}
