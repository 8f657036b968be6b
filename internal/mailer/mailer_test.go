package mailer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"example.com/backstage/allegro/config"

	"github.com/stretchr/testify/require"
)

func testSender(t *testing.T) *SMTPSender {
	t.Helper()
	s, err := NewSMTPSender(config.SMTPConfig{Host: "127.0.0.1", Port: 1, From: "shop@example.com"})
	require.NoError(t, err)
	return s
}

func TestNewSMTPSenderRequiresHost(t *testing.T) {
	_, err := NewSMTPSender(config.SMTPConfig{Port: 25, From: "shop@example.com"})
	require.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	m, err := testSender(t).build(Message{
		To:          "buyer@example.com",
		Subject:     "Your codes",
		Body:        "AAA\nBBB",
		ReplyTo:     "support@example.com",
		DisplayName: "Game Shop",
	})
	require.NoError(t, err)

	require.Equal(t, []string{"buyer@example.com"}, m.GetHeader("To"))
	require.Equal(t, []string{"support@example.com"}, m.GetHeader("Reply-To"))
	require.Equal(t, []string{"Your codes"}, m.GetHeader("Subject"))
	require.Contains(t, m.GetHeader("From")[0], "Game Shop")
	require.Contains(t, m.GetHeader("From")[0], "shop@example.com")

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "AAA")
}

func TestBuildMessageRequiresRecipient(t *testing.T) {
	_, err := testSender(t).build(Message{Subject: "x"})
	require.Error(t, err)
}

func TestSendHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	<-ctx.Done()

	// Either the dial fails or the context wins; nothing is delivered.
	require.Error(t, testSender(t).Send(ctx, Message{To: "buyer@example.com", Body: "x"}))
}
