package chatws

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ashureev/sonnik/internal/agent"
	"github.com/ashureev/sonnik/internal/dialogue"
	"github.com/ashureev/sonnik/internal/domain"
	"github.com/ashureev/sonnik/internal/identity"
	"github.com/ashureev/sonnik/internal/store"
)

func TestSessionManager_Register(t *testing.T) {
	sm := NewSessionManager()
	conn := &websocket.Conn{}

	sm.Register(1, conn)

	assert.Same(t, conn, sm.GetActive(1))
	assert.Equal(t, 1, sm.Len())
}

func TestSessionManager_Unregister(t *testing.T) {
	sm := NewSessionManager()
	conn := &websocket.Conn{}

	sm.Register(1, conn)
	sm.Unregister(1, conn)

	assert.Nil(t, sm.GetActive(1))
	assert.Equal(t, 0, sm.Len())
}

func TestSessionManager_UnregisterStale(t *testing.T) {
	sm := NewSessionManager()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	sm.Register(1, conn1)
	sm.Register(2, conn2)

	// Unregistering a socket that is not the active one is a no-op.
	sm.Unregister(2, conn1)

	assert.Same(t, conn1, sm.GetActive(1))
	assert.Same(t, conn2, sm.GetActive(2))
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	sm := NewSessionManager()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			sm.Register(int64(i), &websocket.Conn{})
		}
	}()

	for i := 0; i < 1000; i++ {
		sm.GetActive(int64(i))
	}
	<-done
	assert.Equal(t, 1000, sm.Len())
}

type echoProvider struct{}

func (echoProvider) Name() string { return "echo" }
func (echoProvider) Complete(_ context.Context, req agent.CompletionRequest) (string, error) {
	return "about " + req.Messages[len(req.Messages)-1].Content, nil
}

type fixture struct {
	server *httptest.Server
	sm     *SessionManager
	user   *domain.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := store.NewMemory()
	ids := identity.NewService(repo, bcrypt.MinCost)
	gen := agent.NewGenerator(echoProvider{}, agent.Config{Timeout: time.Second}, nil, nil)
	dlg := dialogue.NewService(repo, gen, dialogue.Config{ContextLimit: 6, DisplayLimit: 20})

	user, err := ids.Register(context.Background(), identity.Registration{
		Phone: "+70000000001", Name: "Alice", BirthDate: "1990-01-01", Password: "secret",
	})
	require.NoError(t, err)

	sm := NewSessionManager()
	srv := httptest.NewServer(NewHandler(ids, dlg, sm, []string{"http://allowed.example"}, false))
	t.Cleanup(srv.Close)
	return fixture{server: srv, sm: sm, user: user}
}

func (f fixture) url(query string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/chat?" + query
}

func (f fixture) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, f.url("user_id="+strconv.FormatInt(f.user.ID, 10)), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, in map[string]any) outbound {
	t.Helper()
	require.NoError(t, wsjson.Write(ctx, conn, in))
	var out outbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	return out
}

func TestChatSocketConversation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := f.dial(t, ctx)

	out := roundTrip(t, ctx, conn, map[string]any{"type": "ping"})
	assert.Equal(t, "pong", out.Type)

	out = roundTrip(t, ctx, conn, map[string]any{"type": "message", "content": "I was flying"})
	assert.Equal(t, "reply", out.Type)
	assert.Equal(t, "about I was flying", out.Content)
	assert.Equal(t, string(agent.SourceProvider), out.Source)

	out = roundTrip(t, ctx, conn, map[string]any{"type": "history"})
	assert.Equal(t, "history", out.Type)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, domain.RoleUser, out.Messages[0].Role)
	assert.Equal(t, "I was flying", out.Messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, out.Messages[1].Role)

	out = roundTrip(t, ctx, conn, map[string]any{"type": "message", "content": "   "})
	assert.Equal(t, "error", out.Type)

	out = roundTrip(t, ctx, conn, map[string]any{"type": "dance"})
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, "Unknown message type", out.Message)
}

func TestChatSocketInvalidFrame(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := f.dial(t, ctx)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	var out outbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, "Invalid message", out.Message)
}

func TestChatSocketRejectsUnknownUser(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, f.url("user_id=9999"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, f.url(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatSocketRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.Dial(ctx, f.url(fmt.Sprintf("user_id=%d", f.user.ID)), &websocket.DialOptions{HTTPHeader: header})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestChatSocketNewSocketReplacesOld(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := f.dial(t, ctx)
	// A round trip guarantees the first socket is registered.
	roundTrip(t, ctx, first, map[string]any{"type": "ping"})

	second := f.dial(t, ctx)
	out := roundTrip(t, ctx, second, map[string]any{"type": "ping"})
	assert.Equal(t, "pong", out.Type)

	_, _, err := first.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Equal(t, 1, f.sm.Len())
}
