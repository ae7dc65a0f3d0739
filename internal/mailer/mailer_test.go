package mailer

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay accepts one SMTP session and hands back the DATA section.
func fakeRelay(t *testing.T) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	got := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		tp := textproto.NewConn(c)
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0]); cmd {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 localhost")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				got <- string(data)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("250 OK")
			}
		}
	}()
	return ln.Addr().String(), got
}

func TestSMTPSend(t *testing.T) {
	addr, got := fakeRelay(t)
	m := NewSMTP(addr, "127.0.0.1", "", "", "no-reply@shortlink.test")

	require.NoError(t, m.Send(context.Background(), "alice@example.com", "Reset your password", "Click to reset"))

	msg := <-got
	assert.Contains(t, msg, "Subject: Reset your password")
	assert.Contains(t, msg, "alice@example.com")
	assert.Contains(t, msg, "no-reply@shortlink.test")
	assert.Contains(t, msg, "Click to reset")
}

func TestNewSMTPAuth(t *testing.T) {
	assert.Nil(t, NewSMTP("mail:587", "mail", "", "", "a@b").Auth)
	assert.NotNil(t, NewSMTP("mail:587", "mail", "user", "pw", "a@b").Auth)
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, m.Send(context.Background(), "bob@example.com", "verification link", "token=abc"))
	assert.Contains(t, buf.String(), "to=bob@example.com")
	assert.Contains(t, buf.String(), "token=abc")
}
