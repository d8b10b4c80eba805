package tcp

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/chat/internal/chat"
	"github.com/cory-johannsen/chat/internal/config"
	"github.com/cory-johannsen/chat/internal/testutil"
)

const readTimeout = 2 * time.Second

// echoHandler is a test SessionHandler that echoes lines back to the client.
type echoHandler struct {
	sessionCount atomic.Int32
}

func (h *echoHandler) HandleSession(ctx context.Context, conn *Conn) error {
	h.sessionCount.Add(1)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return err
		}
		if line == "quit" {
			_ = conn.WriteLine("bye")
			return nil
		}
		_ = conn.WriteLine("echo: " + line)
	}
}

func testTCPConfig() config.TCPConfig {
	return config.TCPConfig{
		Host:         "127.0.0.1",
		Port:         0, // random port
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

func startAcceptor(t *testing.T, handler SessionHandler) *Acceptor {
	t.Helper()
	acc := NewAcceptor(testTCPConfig(), 4096, handler, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() {
		errCh <- acc.ListenAndServe()
	}()

	require.Eventually(t, func() bool {
		return acc.IsRunning() && acc.Addr() != ""
	}, 2*time.Second, 10*time.Millisecond, "acceptor did not start in time")

	t.Cleanup(func() {
		acc.Stop()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("acceptor did not stop in time")
		}
	})
	return acc
}

func startChatServer(t *testing.T) (*Acceptor, *chat.Registry) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := chat.NewRegistry(logger)
	handler := chat.NewHandler(registry, config.ChatConfig{
		PlaceholderPrefix: "usuario",
		SystemLabel:       "Sistema",
		MaxLineLength:     4096,
	}, logger)
	acc := startAcceptor(t, SessionHandlerFunc(func(ctx context.Context, conn *Conn) error {
		return handler.HandleSession(ctx, conn)
	}))
	return acc, registry
}

// connectNamed connects a client and renames it, draining the welcome line.
func connectNamed(t *testing.T, addr, name string) *testutil.LineClient {
	t.Helper()
	c := testutil.NewLineClient(t, addr)
	c.ReadUntil("welcome", readTimeout)
	c.Send("change-userName " + name)
	c.ReadUntil("your name is now: "+name, readTimeout)
	return c
}

func TestAcceptorStartAndStop(t *testing.T) {
	handler := &echoHandler{}
	acc := startAcceptor(t, handler)

	conn := testutil.NewLineClient(t, acc.Addr())
	conn.Send("hello")
	assert.Equal(t, "echo: hello", conn.ReadLine(readTimeout))

	conn.Send("quit")
	assert.Equal(t, "bye", conn.ReadLine(readTimeout))
	conn.Close()

	acc.Stop()
	assert.False(t, acc.IsRunning())
	assert.Equal(t, int32(1), handler.sessionCount.Load())
}

func TestAcceptorStopClosesActiveSessions(t *testing.T) {
	acc := startAcceptor(t, &echoHandler{})

	conn := testutil.NewLineClient(t, acc.Addr())
	conn.Send("ping")
	conn.ReadLine(readTimeout)

	done := make(chan struct{})
	go func() {
		acc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked on an active session")
	}
	conn.ExpectClosed(readTimeout)
}

func TestAcceptorMultipleClients(t *testing.T) {
	handler := &echoHandler{}
	acc := startAcceptor(t, handler)

	const numClients = 3
	for i := 0; i < numClients; i++ {
		c := testutil.NewLineClient(t, acc.Addr())
		c.Send("quit")
		assert.Equal(t, "bye", c.ReadLine(readTimeout))
		c.Close()
	}

	require.Eventually(t, func() bool {
		return handler.sessionCount.Load() == numClients
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAcceptorListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := testTCPConfig()
	cfg.Port = l.Addr().(*net.TCPAddr).Port
	acc := NewAcceptor(cfg, 4096, &echoHandler{}, zaptest.NewLogger(t))
	assert.Error(t, acc.ListenAndServe())
}

func TestChat_RoundTrip(t *testing.T) {
	acc, _ := startChatServer(t)

	alice := connectNamed(t, acc.Addr(), "alice")
	bob := connectNamed(t, acc.Addr(), "bob")

	alice.Send("send-msg bob hello")
	assert.Equal(t, "[private from alice]: hello", bob.ReadUntil("hello", readTimeout))
	assert.Contains(t, alice.ReadUntil("enviado", readTimeout), "[enviado a bob]: hello")

	alice.Send("global-msg hi all")
	assert.Equal(t, "[alice]: hi all", bob.ReadUntil("hi all", readTimeout))
	assert.Contains(t, alice.ReadUntil("sent to", readTimeout), "sent to 1 user(s)")
}

func TestChat_Collision(t *testing.T) {
	acc, registry := startChatServer(t)

	alice := connectNamed(t, acc.Addr(), "alice")
	bob := testutil.NewLineClient(t, acc.Addr())
	welcome := bob.ReadUntil("welcome", readTimeout)
	assert.Contains(t, welcome, "usuario2")

	bob.Send("change-userName alice")
	assert.Equal(t, "Sistema: the name 'alice' is already in use.", bob.ReadUntil("already in use", readTimeout))

	names := registry.Names()
	assert.Contains(t, names, "alice")
	assert.Contains(t, names, "usuario2")
	assert.Len(t, names, 2)

	// alice keeps working under her name
	bob.Send("send-msg alice still here")
	assert.Equal(t, "[private from usuario2]: still here", alice.ReadUntil("still here", readTimeout))
}

func TestChat_Disconnect(t *testing.T) {
	acc, registry := startChatServer(t)

	alice := connectNamed(t, acc.Addr(), "alice")
	bob := connectNamed(t, acc.Addr(), "bob")

	alice.Close()
	assert.Equal(t, "Sistema: alice left the chat", bob.ReadUntil("left the chat", readTimeout))

	require.Eventually(t, func() bool {
		_, ok := registry.Lookup("alice")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChat_QuitClosesConnection(t *testing.T) {
	acc, registry := startChatServer(t)

	alice := connectNamed(t, acc.Addr(), "alice")
	bob := connectNamed(t, acc.Addr(), "bob")

	alice.Send("salir")
	alice.ExpectClosed(readTimeout)
	bob.ReadUntil("alice left the chat", readTimeout)
	assert.Equal(t, []string{"bob"}, registry.Names())
}

func TestChat_SelfMessage(t *testing.T) {
	acc, _ := startChatServer(t)

	alice := connectNamed(t, acc.Addr(), "alice")
	bob := connectNamed(t, acc.Addr(), "bob")

	alice.Send("send-msg alice test")
	assert.Equal(t, "Sistema: you cannot message yourself.", alice.ReadUntil("yourself", readTimeout))

	// Nothing from the self-message reached bob: the next line is the marker.
	alice.Send("send-msg bob marker")
	assert.Equal(t, "[private from alice]: marker", bob.ReadLine(readTimeout))
}

func TestChat_UnknownAndUsage(t *testing.T) {
	acc, _ := startChatServer(t)
	alice := connectNamed(t, acc.Addr(), "alice")

	alice.Send("dance")
	assert.Contains(t, alice.ReadLine(readTimeout), "unrecognized command")

	alice.Send("send-msg bob")
	assert.Contains(t, alice.ReadLine(readTimeout), "usage: send-msg <targetName> <message>")

	alice.Send("send-msg nobody hi")
	assert.Equal(t, "Sistema: user not found: nobody", alice.ReadLine(readTimeout))
}

func TestChat_StopUnregistersAllSessions(t *testing.T) {
	acc, registry := startChatServer(t)
	connectNamed(t, acc.Addr(), "alice")
	connectNamed(t, acc.Addr(), "bob")

	acc.Stop()
	assert.Equal(t, 0, registry.Len())
}
