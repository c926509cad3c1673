package discord

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/zulandar/padtest/internal/notify"
)

// --- Mock session ---

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

type mockSession struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr error
	limited int
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limited > 0 {
		m.limited--
		return nil, &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
	}
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: "msg-123"}, nil
}

func newTestNotifier(t *testing.T, sess *mockSession) *Notifier {
	t.Helper()
	n, err := New(Opts{Session: sess, ChannelID: "123456"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.baseBackoff = time.Millisecond
	n.maxBackoff = 5 * time.Millisecond
	return n
}

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New(Opts{ChannelID: "1"}); err == nil {
		t.Fatal("expected error without bot token")
	}
}

func TestNew_RequiresChannel(t *testing.T) {
	if _, err := New(Opts{BotToken: "tok"}); err == nil {
		t.Fatal("expected error without channel id")
	}
}

func TestNew_RealSession(t *testing.T) {
	n, err := New(Opts{BotToken: "tok", ChannelID: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Name() != "discord" {
		t.Errorf("Name() = %q", n.Name())
	}
}

func TestSend_Embeds(t *testing.T) {
	sess := &mockSession{}
	n := newTestNotifier(t, sess)

	err := n.Send(context.Background(), notify.Message{
		Text: "pad: safety test fos complete",
		Events: []notify.Event{{
			Title:  "pad: safety test fos complete",
			Body:   "**Safety factor**: 1.6",
			Color:  notify.ColorSuccess,
			Fields: []notify.Field{{Name: "Test", Value: "fos", Short: true}},
		}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sess.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sess.sent))
	}
	msg := sess.sent[0]
	if msg.channelID != "123456" {
		t.Errorf("channel = %q", msg.channelID)
	}
	if len(msg.data.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(msg.data.Embeds))
	}
	embed := msg.data.Embeds[0]
	if embed.Color != 0x36a64f {
		t.Errorf("color = %x, want 36a64f", embed.Color)
	}
	if len(embed.Fields) != 1 || !embed.Fields[0].Inline {
		t.Errorf("fields = %+v", embed.Fields)
	}
}

func TestSend_Error(t *testing.T) {
	n := newTestNotifier(t, &mockSession{sendErr: fmt.Errorf("missing access")})
	if err := n.Send(context.Background(), notify.Message{Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSend_RetriesRateLimit(t *testing.T) {
	sess := &mockSession{limited: 2}
	n := newTestNotifier(t, sess)
	if err := n.Send(context.Background(), notify.Message{Text: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sess.sent) != 1 {
		t.Errorf("sent = %d, want 1", len(sess.sent))
	}
}

func TestSend_ExhaustsRetries(t *testing.T) {
	sess := &mockSession{limited: maxRetries + 1}
	n := newTestNotifier(t, sess)
	if err := n.Send(context.Background(), notify.Message{Text: "x"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestSend_AfterClose(t *testing.T) {
	n := newTestNotifier(t, &mockSession{})
	n.Close()
	if err := n.Send(context.Background(), notify.Message{Text: "x"}); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"#36a64f", 0x36a64f},
		{"e53935", 0xe53935},
		{"#FF9800", 0xff9800},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in); got != tt.want {
			t.Errorf("parseHexColor(%q) = %x, want %x", tt.in, got, tt.want)
		}
	}
}
