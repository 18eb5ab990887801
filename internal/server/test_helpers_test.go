package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/quillbin/quillbin/internal/auth"
	"github.com/quillbin/quillbin/internal/database"
	"github.com/quillbin/quillbin/internal/pastes"
	"github.com/quillbin/quillbin/internal/users"
)

type testIDGenerator struct {
	counter int
}

func (g *testIDGenerator) NewID() (string, error) {
	g.counter++
	return fmt.Sprintf("paste-%d", g.counter), nil
}

type testServer struct {
	handler http.Handler
	users   *users.Service
	pastes  *pastes.Service
	db      *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:quillbin_server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db, nil); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	pasteService, err := pastes.NewService(pastes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: &testIDGenerator{},
		Users:      userService,
	})
	if err != nil {
		t.Fatalf("failed to construct paste service: %v", err)
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "quillbin-auth",
		Audience:      "quillbin-api",
		TokenTTL:      time.Hour,
	})

	handler, err := NewHTTPHandler(Dependencies{
		Tokens:       tokenIssuer,
		PasteService: pasteService,
		UserService:  userService,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return &testServer{handler: handler, users: userService, pastes: pasteService, db: db}
}

func (s *testServer) registerAndLogin(t *testing.T, username string) (string, string) {
	t.Helper()

	user, err := s.users.Register(context.Background(), username, "test-password")
	if err != nil {
		t.Fatalf("failed to register %s: %v", username, err)
	}

	login := s.doJSON(t, http.MethodPost, "/auth/login", "", map[string]any{
		"username": username,
		"password": "test-password",
	})
	if login.Code != http.StatusOK {
		t.Fatalf("login failed for %s: %d %s", username, login.Code, login.Body.String())
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(login.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return user.ID, payload.AccessToken
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %s: %v", recorder.Body.String(), err)
	}
	return payload
}
