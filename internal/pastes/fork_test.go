package pastes

import (
	"context"
	"testing"
)

func TestGetForkDataCopiesSettingsButNotIdentity(t *testing.T) {
	service, _ := newTestService(t, []string{"p1"}, nil)

	owner := "owner-1"
	_, err := service.Create(context.Background(), CreateRequest{
		Content:           "fork me",
		OwnerID:           &owner,
		Visibility:        VisibilityPublic,
		CustomSlug:        strPtr("original"),
		Title:             strPtr("demo"),
		Language:          strPtr("go"),
		VersioningEnabled: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := service.GetForkData(context.Background(), "p1", &Caller{UserID: "forker"}, PermissionsForRole("user", false), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Denied != "" {
		t.Fatalf("expected fork allowed, denied with %s", result.Denied)
	}
	draft := result.Draft
	if draft.SourceID != "p1" || draft.SourceVersion != 1 {
		t.Fatalf("unexpected source reference: %+v", draft)
	}
	if draft.Content != "fork me" {
		t.Fatalf("expected content carried over")
	}
	if draft.Title == nil || *draft.Title != "demo" || draft.Language == nil || *draft.Language != "go" {
		t.Fatalf("expected title and language carried over")
	}
	if !draft.VersioningEnabled {
		t.Fatalf("expected versioning setting carried over")
	}
}

func TestGetForkDataDeniesMissingPaste(t *testing.T) {
	service, _ := newTestService(t, nil, nil)
	result, err := service.GetForkData(context.Background(), "ghost", nil, AnonymousPermissions(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Denied != ForkDeniedNotFound {
		t.Fatalf("expected not-found denial, got %q", result.Denied)
	}
}

func TestGetForkDataDeniesUnreadablePaste(t *testing.T) {
	service, _ := newTestService(t, []string{"p1"}, nil)

	owner := "owner-1"
	_, err := service.Create(context.Background(), CreateRequest{
		Content:    "hidden",
		OwnerID:    &owner,
		Visibility: VisibilityPrivate,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := service.GetForkData(context.Background(), "p1", &Caller{UserID: "stranger"}, PermissionsForRole("user", false), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Denied != ForkDeniedAccess {
		t.Fatalf("expected access denial, got %q", result.Denied)
	}
}

func TestGetForkDataPasswordProtectedRequiresOwner(t *testing.T) {
	service, _ := newTestService(t, []string{"p1"}, nil)

	owner := "owner-1"
	hash := "stored-hash"
	_, err := service.Create(context.Background(), CreateRequest{
		Content:      "locked",
		OwnerID:      &owner,
		Visibility:   VisibilityPublic,
		PasswordHash: &hash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := service.GetForkData(context.Background(), "p1", &Caller{UserID: "stranger"}, PermissionsForRole("user", false), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Denied != ForkDeniedPassword {
		t.Fatalf("expected password denial for non-owner, got %q", result.Denied)
	}

	result, err = service.GetForkData(context.Background(), "p1", &Caller{UserID: owner}, PermissionsForRole("user", false), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Denied != "" || result.Draft == nil {
		t.Fatalf("expected owner fork allowed, got %q", result.Denied)
	}
}

func TestGetForkDataHistoricalVersion(t *testing.T) {
	service, _ := newTestService(t, []string{"p1"}, nil)

	owner := "owner-1"
	_, err := service.Create(context.Background(), CreateRequest{
		Content:               "v1 body",
		OwnerID:               &owner,
		Visibility:            VisibilityPublic,
		VersioningEnabled:     true,
		VersionHistoryVisible: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Update(context.Background(), UpdateRequest{
		PasteID: "p1",
		Content: Set("v2 body"),
	}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	requested := int64(1)
	result, err := service.GetForkData(context.Background(), "p1", nil, AnonymousPermissions(), &requested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Draft.Content != "v1 body" || result.Draft.SourceVersion != 1 {
		t.Fatalf("expected historical content, got v%d %q", result.Draft.SourceVersion, result.Draft.Content)
	}

	// Requests beyond the current version clamp down to it.
	tooHigh := int64(99)
	result, err = service.GetForkData(context.Background(), "p1", nil, AnonymousPermissions(), &tooHigh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Draft.Content != "v2 body" || result.Draft.SourceVersion != 2 {
		t.Fatalf("expected clamp to current version, got v%d", result.Draft.SourceVersion)
	}
}

func TestGetForkDataHiddenHistoryIgnoresVersionRequest(t *testing.T) {
	service, _ := newTestService(t, []string{"p1"}, nil)

	owner := "owner-1"
	_, err := service.Create(context.Background(), CreateRequest{
		Content:           "v1 body",
		OwnerID:           &owner,
		Visibility:        VisibilityPublic,
		VersioningEnabled: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Update(context.Background(), UpdateRequest{
		PasteID: "p1",
		Content: Set("v2 body"),
	}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	requested := int64(1)
	result, err := service.GetForkData(context.Background(), "p1", &Caller{UserID: "stranger"}, PermissionsForRole("user", false), &requested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Draft.Content != "v2 body" {
		t.Fatalf("expected hidden history to serve only the current content")
	}
}

func TestGetForkDataCarriesInvitesMinusForker(t *testing.T) {
	knownUsers := map[string]string{"u1": "alice", "u2": "bob"}
	service, _ := newTestService(t, []string{"p1"}, knownUsers)

	owner := "owner-1"
	_, err := service.Create(context.Background(), CreateRequest{
		Content:        "body",
		OwnerID:        &owner,
		Visibility:     VisibilityInviteOnly,
		InvitedUserIDs: []string{"u1", "u2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := service.GetForkData(context.Background(), "p1", &Caller{UserID: "u1"}, PermissionsForRole("user", false), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Denied != "" {
		t.Fatalf("expected invited caller to fork, denied with %s", result.Denied)
	}
	if len(result.Draft.InvitedUserIDs) != 1 || result.Draft.InvitedUserIDs[0] != "u2" {
		t.Fatalf("expected invites carried minus the forker, got %v", result.Draft.InvitedUserIDs)
	}
}
