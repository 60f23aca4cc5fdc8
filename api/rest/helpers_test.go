package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/account"
	"github.com/kasuganosora/socialgraph/api/rest"
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
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const adminKey = "admin-secret"

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAuditor) Log(e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

type testAPI struct {
	r        *gin.Engine
	db       *gorm.DB
	cache    cache.Cache
	accounts *account.Service
	graph    *social.Service
	sched    *scheduler.Scheduler
	sec      config.SecurityConfig
	audit    *recordingAuditor
	admin    *rest.AdminHandler
	conns    *recordingCloser
}

type recordingCloser struct {
	mu     sync.Mutex
	tokens []string
}

func (r *recordingCloser) CloseToken(token string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
	return 1
}

func (r *recordingCloser) closed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...)
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sec := config.SecurityConfig{
		JWTSecret:  "test-secret",
		AccessTTL:  5 * time.Minute,
		RefreshTTL: time.Hour,
	}
	accounts := account.NewService(db, bcrypt.MinCost, logger)
	graph := social.NewService(db, accounts, ps, config.FriendConfig{}, logger)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	auditor := &recordingAuditor{}

	admin := rest.NewAdminHandler(graph, c, sched, logger)
	conns := &recordingCloser{}

	r := gin.New()
	r.Use(mw.TraceID())
	rest.Register(r, rest.Handlers{
		Auth:   rest.NewAuthHandler(accounts, c, sec, auditor, logger).WithConnCloser(conns),
		User:   rest.NewUserHandler(accounts, config.SearchConfig{PageSize: 10, MaxPageSize: 50}, auditor, logger),
		Social: rest.NewSocialHandler(graph, auditor, logger),
		Admin:  admin,
	}, mw.Auth(sec, c), rest.AdminAuth(adminKey))

	return &testAPI{r: r, db: db, cache: c, accounts: accounts, graph: graph, sched: sched, sec: sec, audit: auditor, admin: admin, conns: conns}
}

// do sends a request; headers are name/value pairs.
func (a *testAPI) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func (a *testAPI) authed(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	return a.do(method, path, body, "Authorization", "Bearer "+token)
}

func (a *testAPI) signup(t *testing.T, email string) int64 {
	t.Helper()
	w := a.do(http.MethodPost, "/api/signup/", map[string]string{
		"email":                 email,
		"password":              "pass12345",
		"password_confirmation": "pass12345",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID int64 `json:"id"`
	}
	decode(t, w, &resp)
	return resp.ID
}

func (a *testAPI) login(t *testing.T, email string) (access, refresh string) {
	t.Helper()
	w := a.do(http.MethodPost, "/api/login/", map[string]string{"email": email, "password": "pass12345"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Access  string `json:"access_token"`
		Refresh string `json:"refresh_token"`
	}
	decode(t, w, &resp)
	return resp.Access, resp.Refresh
}

// user signs up and logs in, returning the id and an access token.
func (a *testAPI) user(t *testing.T, email string) (int64, string) {
	t.Helper()
	id := a.signup(t, email)
	access, _ := a.login(t, email)
	return id, access
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	decode(t, w, &resp)
	return resp.Error
}
