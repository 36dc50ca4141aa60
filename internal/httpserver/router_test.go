package httpserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory_go/internal/config"
	"directory_go/internal/domain"
	"directory_go/internal/httpserver"
	"directory_go/internal/security"
	"directory_go/internal/store/memory"
	"directory_go/internal/ws"
)

type testServer struct {
	srv    *httptest.Server
	users  domain.UserRepository
	hasher *security.PasswordHasher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		AppName:     "test",
		CORSOrigins: []string{"http://localhost:3000"},
	}
	store := memory.NewStore()
	users := memory.NewUserRepo()
	tokens := security.NewTokenService("test-secret", time.Hour)
	hasher := security.NewPasswordHasher(4)
	registry := ws.NewRegistry()

	handler := httpserver.NewRouter(cfg, store, users, registry, tokens, hasher)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, users: users, hasher: hasher}
}

func (ts *testServer) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (ts *testServer) registerAndLogin(t *testing.T, username string) string {
	t.Helper()

	resp := ts.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"password": "Password1!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, resp, &out)
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	token := ts.registerAndLogin(t, "alice")

	t.Run("DuplicateRegister", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "alice",
			"password": "Password1!",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "alice",
			"password": "nope",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Me", func(t *testing.T) {
		resp := ts.request(t, http.MethodGet, "/api/auth/me", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var user struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		}
		decode(t, resp, &user)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, domain.RoleBusiness, user.Role)
	})

	t.Run("MeWithoutToken", func(t *testing.T) {
		resp := ts.request(t, http.MethodGet, "/api/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestChatFlow(t *testing.T) {
	ts := newTestServer(t)

	aliceToken := ts.registerAndLogin(t, "alice")
	bobToken := ts.registerAndLogin(t, "bob")
	carolToken := ts.registerAndLogin(t, "carol")

	var room struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		CanWrite    bool   `json:"can_write"`
	}

	t.Run("OpenDirect", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/chat/direct", aliceToken, map[string]string{
			"username": "bob",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		decode(t, resp, &room)
		assert.Equal(t, "alice#bob", room.ID)
		assert.Equal(t, "bob", room.DisplayName)
		assert.True(t, room.CanWrite)
	})

	t.Run("SelfChatRejected", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/chat/direct", aliceToken, map[string]string{
			"username": "alice",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("SendAndList", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/chat/rooms/"+url.PathEscape(room.ID)+"/messages", aliceToken, map[string]string{
			"text": "hi bob",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = ts.request(t, http.MethodGet, "/api/chat/rooms/"+url.PathEscape(room.ID)+"/messages", bobToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var msgs []struct {
			Text     string `json:"text"`
			SenderID string `json:"sender_id"`
		}
		decode(t, resp, &msgs)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi bob", msgs[0].Text)
		assert.Equal(t, "alice", msgs[0].SenderID)
	})

	t.Run("BlankMessageRejected", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/chat/rooms/"+url.PathEscape(room.ID)+"/messages", aliceToken, map[string]string{
			"text": "   ",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("OutsiderDenied", func(t *testing.T) {
		resp := ts.request(t, http.MethodGet, "/api/chat/rooms/"+url.PathEscape(room.ID)+"/messages", carolToken, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("UnknownRoom", func(t *testing.T) {
		resp := ts.request(t, http.MethodGet, "/api/chat/rooms/ghost%23town/messages", aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("RoomListsPerViewer", func(t *testing.T) {
		resp := ts.request(t, http.MethodGet, "/api/chat/rooms", carolToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var rooms []struct {
			ID string `json:"id"`
		}
		decode(t, resp, &rooms)
		require.Len(t, rooms, 1)
		assert.Equal(t, domain.PublicRoomID, rooms[0].ID)
	})

	t.Run("AllModeDeniedToNonAdmins", func(t *testing.T) {
		resp := ts.request(t, http.MethodGet, "/api/chat/rooms?mode=all", carolToken, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
