package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/account"
	apirest "github.com/kasuganosora/socialgraph/api/rest"
	"github.com/kasuganosora/socialgraph/api/sse"
	"github.com/kasuganosora/socialgraph/api/ws"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/scheduler"
	"github.com/kasuganosora/socialgraph/social"
	"github.com/kasuganosora/socialgraph/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const (
	AdminKey     = "integration-admin-key"
	TestPassword = "testpass1234"
)

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB       *gorm.DB
	Cache    cache.Cache
	PubSub   cache.PubSub
	Accounts *account.Service
	Graph    *social.Service
	Audit    *audit.Service
	Sched    *scheduler.Scheduler
	Hub      *ws.Hub
	Server   *httptest.Server
	URL      string // http://127.0.0.1:<port>
	Sec      config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		AccessTTL:      5 * time.Minute,
		RefreshTTL:     time.Hour,
		BcryptCost:     bcrypt.MinCost,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	// ---- Services ----
	auditSvc := audit.New(db, logger, audit.WithFlushInterval(50*time.Millisecond))
	accounts := account.NewService(db, sec.BcryptCost, logger)
	graph := social.NewService(db, accounts, pubsub, config.FriendConfig{}, logger)

	sched := scheduler.New(logger)
	sched.AddTicker("graph_stats", time.Hour, true, func(ctx context.Context) error {
		return graph.SnapshotStats(ctx, c, time.Now())
	})

	hub := ws.NewHub(logger)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	apirest.Register(r, apirest.Handlers{
		Auth:   apirest.NewAuthHandler(accounts, c, sec, auditSvc, logger).WithConnCloser(hub),
		User:   apirest.NewUserHandler(accounts, config.SearchConfig{PageSize: 10, MaxPageSize: 100}, auditSvc, logger),
		Social: apirest.NewSocialHandler(graph, auditSvc, logger),
		Admin:  apirest.NewAdminHandler(graph, c, sched, logger).WithPresence(hub),
	},
		mw.Auth(sec, c),
		mw.IPWhitelist(nil), apirest.AdminAuth(AdminKey),
	)

	sseH := sse.NewHandler(pubsub, c, sec, logger)
	r.GET("/sse", sseH.ServeSSE)

	wsRouter := ws.NewRouter(logger)
	ws.NewSocialHandlers(graph, auditSvc, logger).RegisterHandlers(wsRouter)
	r.GET("/ws", ws.NewHandler(c, pubsub, sec, hub, wsRouter, logger).ServeWS)

	server := httptest.NewServer(r)

	return &TestServer{
		DB:       db,
		Cache:    c,
		PubSub:   pubsub,
		Accounts: accounts,
		Graph:    graph,
		Audit:    auditSvc,
		Sched:    sched,
		Hub:      hub,
		Server:   server,
		URL:      server.URL,
		Sec:      sec,
	}
}

// Close shuts down the test server and background workers.
func (ts *TestServer) Close() {
	ts.Hub.CloseAll()
	ts.Server.Close()
	ts.Sched.Stop()
	ts.Audit.Stop(context.Background())
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body and optional Bearer token.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, token)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Signup registers email with TestPassword and returns the new user id.
func (ts *TestServer) Signup(t *testing.T, email string) int64 {
	t.Helper()
	resp := ts.PostJSON(t, "/api/signup/", map[string]string{
		"email":                 email,
		"password":              TestPassword,
		"password_confirmation": TestPassword,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result struct {
		ID int64 `json:"id"`
	}
	ReadJSON(t, resp, &result)
	return result.ID
}

// Login returns the access and refresh tokens for email.
func (ts *TestServer) Login(t *testing.T, email string) (access, refresh string) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/login/", map[string]string{
		"email":    email,
		"password": TestPassword,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Access  string `json:"access_token"`
		Refresh string `json:"refresh_token"`
	}
	ReadJSON(t, resp, &result)
	return result.Access, result.Refresh
}

// NewUser signs up a fresh user and logs in.
func (ts *TestServer) NewUser(t *testing.T, prefix string) (id int64, email, access string) {
	t.Helper()
	email = UniqueEmail(prefix)
	id = ts.Signup(t, email)
	access, _ = ts.Login(t, email)
	return id, email, access
}

var testCounter uint64

// UniqueEmail returns an address no other test uses.
func UniqueEmail(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d@example.com", prefix, time.Now().UnixNano()%100000, n)
}

// --- SSE helpers ---

// EventStream is an open /sse connection.
type EventStream struct {
	resp   *http.Response
	events chan SSEEvent
	cancel context.CancelFunc
}

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// OpenEvents connects to /sse and waits for the connected event.
func (ts *TestServer) OpenEvents(t *testing.T, token string) *EventStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	es := &EventStream{resp: resp, events: make(chan SSEEvent, 16), cancel: cancel}
	go es.readLoop()

	ev, ok := es.Next(5 * time.Second)
	require.True(t, ok, "no connected event")
	require.Equal(t, "connected", ev.Name)
	return es
}

func (es *EventStream) readLoop() {
	defer close(es.events)
	scanner := bufio.NewScanner(es.resp.Body)
	var ev SSEEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.Name != "" {
				es.events <- ev
			}
			ev = SSEEvent{}
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

// Next returns the next event, or false after timeout.
func (es *EventStream) Next(timeout time.Duration) (SSEEvent, bool) {
	select {
	case ev, ok := <-es.events:
		return ev, ok
	case <-time.After(timeout):
		return SSEEvent{}, false
	}
}

// Close drops the connection.
func (es *EventStream) Close() {
	es.cancel()
	es.resp.Body.Close()
}
