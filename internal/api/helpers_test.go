package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/chat-backend/internal/config"
	"github.com/npezzotti/chat-backend/internal/database"
	"github.com/npezzotti/chat-backend/internal/server"
	"github.com/npezzotti/chat-backend/internal/stats"
	"github.com/npezzotti/chat-backend/internal/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testConfig = config.Config{
	ServerAddr:     "localhost:8080",
	SigningKey:     []byte("test-signing-key"),
	TokenTTL:       time.Hour,
	AllowedOrigins: []string{"http://localhost:3000"},
}

func newTestApp(t *testing.T, db database.ChatRepository, cs *server.ChatServer) *GoChatApp {
	cfg := testConfig
	return NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), cs, db, &cfg)
}

// observeLogs swaps the app's logger for one whose entries can be inspected.
func observeLogs(app *GoChatApp) *observer.ObservedLogs {
	core, logs := observer.New(zap.DebugLevel)
	app.log = zap.New(core).Sugar()
	return logs
}

func newTestChatServer(t *testing.T) *server.ChatServer {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	su.On("Set", mock.Anything, mock.Anything).Maybe()

	cs, err := server.NewChatServer(testutil.TestLogger(t), su, config.RateLimitConfig{})
	require.NoError(t, err)
	return cs
}

func bearer(t *testing.T, app *GoChatApp, userId string) string {
	token, err := app.createJwtForSession(userId, time.Hour)
	require.NoError(t, err, "failed to create jwt token")
	return "Bearer " + token
}

// serve runs a request through the app's full handler chain.
func serve(app *GoChatApp, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	if s, ok := v.(string); ok {
		return bytes.NewBufferString(s)
	}

	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "failed to decode response body")
	return v
}

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
