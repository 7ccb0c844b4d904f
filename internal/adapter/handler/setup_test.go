package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/adapter/storage"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/auth"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/service"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/logger"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/metrics"
)

type testApp struct {
	svc     Services
	tokens  *auth.TokenIssuer
	metrics *metrics.ServerMetrics
	router  *gin.Engine
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Discard()
	store := storage.NewMemoryStore(storage.SeedItems...)
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)

	tokens, err := auth.NewTokenIssuer(auth.Config{Secret: []byte("test-secret"), Issuer: "test"})
	if err != nil {
		t.Fatalf("NewTokenIssuer failed: %v", err)
	}
	authSvc, err := service.NewAuthService(store, hasher, tokens, log)
	if err != nil {
		t.Fatalf("NewAuthService failed: %v", err)
	}

	orders := service.NewOrderService(store, store, store, storage.NewMemoryIdempotency(), 16, log)
	t.Cleanup(orders.Close)

	svc := Services{
		Users:  service.NewUserService(store, hasher, log),
		Auth:   authSvc,
		Items:  service.NewItemService(store, log),
		Carts:  service.NewCartService(store, store, store, storage.NewMemoryLocker(), log),
		Orders: orders,
	}
	m := metrics.NewServerMetrics()

	return &testApp{
		svc:     svc,
		tokens:  tokens,
		metrics: m,
		router:  NewHTTPHandler(svc, m, log).Router(),
	}
}

func (a *testApp) do(method, path string, body any, token string, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(auth.HeaderName, auth.TokenPrefix+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// signup registers a user over HTTP and returns a bearer token for it.
func (a *testApp) signup(t *testing.T, username, password string) string {
	t.Helper()
	rec := a.do(http.MethodPost, "/api/user/create", createUserRequest{
		Username: username, Password: password, ConfirmPassword: password,
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("create user: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	return a.loginToken(t, username, password)
}

func (a *testApp) loginToken(t *testing.T, username, password string) string {
	t.Helper()
	rec := a.do(http.MethodPost, "/login", loginRequest{Username: username, Password: password}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}
	return strings.TrimPrefix(rec.Header().Get(auth.HeaderName), auth.TokenPrefix)
}

func (a *testApp) createUser(t *testing.T, username, password string) {
	t.Helper()
	if _, err := a.svc.Users.CreateUser(context.Background(), username, password, password); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}
