package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
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
	"github.com/quillbin/quillbin/internal/server"
	"github.com/quillbin/quillbin/internal/users"
)

const (
	signingSecret   = "integration-secret"
	jsonContentType = "application/json"
)

func TestAuthAndPasteFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:quillbin_integration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db, nil); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build users service: %v", err)
	}
	pasteService, err := pastes.NewService(pastes.ServiceConfig{
		Database:   db,
		IDProvider: pastes.NewNanoIDProvider(),
		Users:      userService,
	})
	if err != nil {
		testContext.Fatalf("failed to build paste service: %v", err)
	}
	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(signingSecret),
		Issuer:        "quillbin-auth",
		Audience:      "quillbin-api",
		TokenTTL:      time.Hour,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:       tokenIssuer,
		PasteService: pasteService,
		UserService:  userService,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	// Register and sign in.
	registerBody := postJSON(testContext, testServer.URL+"/auth/register", "", map[string]any{
		"username": "alice",
		"password": "integration-pass",
	}, http.StatusCreated)
	if registerBody["role"] != "admin" {
		testContext.Fatalf("expected first account to be admin, got %v", registerBody["role"])
	}

	loginBody := postJSON(testContext, testServer.URL+"/auth/login", "", map[string]any{
		"username": "alice",
		"password": "integration-pass",
	}, http.StatusOK)
	token, _ := loginBody["access_token"].(string)
	if token == "" {
		testContext.Fatalf("expected an access token")
	}

	// Create a versioned paste.
	created := postJSON(testContext, testServer.URL+"/pastes", token, map[string]any{
		"content":                 "first draft",
		"title":                   "integration",
		"versioning_enabled":      true,
		"version_history_visible": true,
	}, http.StatusCreated)
	pasteID, _ := created["id"].(string)
	if pasteID == "" {
		testContext.Fatalf("expected a paste id")
	}

	// Anonymous read works for a public paste.
	read := getJSON(testContext, testServer.URL+"/pastes/"+pasteID, "", http.StatusOK)
	if read["content"] != "first draft" {
		testContext.Fatalf("unexpected content: %v", read["content"])
	}

	// Edit and confirm a snapshot landed.
	patchJSON(testContext, testServer.URL+"/pastes/"+pasteID, token, map[string]any{
		"content": "second draft",
	}, http.StatusOK)

	versions := getJSON(testContext, testServer.URL+"/pastes/"+pasteID+"/versions", "", http.StatusOK)
	if versions["current_version"] != float64(2) {
		testContext.Fatalf("expected current version 2, got %v", versions["current_version"])
	}
	snapshot := getJSON(testContext, testServer.URL+"/pastes/"+pasteID+"/versions/1", "", http.StatusOK)
	if snapshot["content"] != "first draft" {
		testContext.Fatalf("expected snapshot of the first draft, got %v", snapshot["content"])
	}

	// Fork the historical version anonymously.
	fork := postJSON(testContext, testServer.URL+"/pastes/"+pasteID+"/fork?version=1", "", nil, http.StatusOK)
	if fork["content"] != "first draft" || fork["source_version"] != float64(1) {
		testContext.Fatalf("unexpected fork draft: %v", fork)
	}
}

func postJSON(t *testing.T, url, token string, body map[string]any, wantStatus int) map[string]any {
	t.Helper()
	return doJSON(t, http.MethodPost, url, token, body, wantStatus)
}

func getJSON(t *testing.T, url, token string, wantStatus int) map[string]any {
	t.Helper()
	return doJSON(t, http.MethodGet, url, token, nil, wantStatus)
}

func patchJSON(t *testing.T, url, token string, body map[string]any, wantStatus int) map[string]any {
	t.Helper()
	return doJSON(t, http.MethodPatch, url, token, body, wantStatus)
}

func doJSON(t *testing.T, method, url, token string, body map[string]any, wantStatus int) map[string]any {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if response.StatusCode != wantStatus {
		t.Fatalf("unexpected status for %s %s: got %d want %d body %s",
			method, url, response.StatusCode, wantStatus, string(raw))
	}

	payload := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("failed to decode response %s: %v", string(raw), err)
		}
	}
	return payload
}
