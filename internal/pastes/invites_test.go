package pastes

import (
	"context"
	"testing"
)

func TestAddInvitesIsIdempotent(t *testing.T) {
	knownUsers := map[string]string{"u1": "alice", "u2": "bob"}
	service, db := newTestService(t, []string{"p1"}, knownUsers)

	owner := "owner-1"
	_, err := service.Create(context.Background(), CreateRequest{
		Content:    "body",
		OwnerID:    &owner,
		Visibility: VisibilityInviteOnly,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.AddInvites(context.Background(), "p1", []string{"u1", "u2"}, owner); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.AddInvites(context.Background(), "p1", []string{"u1"}, owner); err != nil {
		t.Fatalf("expected re-invite to be a no-op, got %v", err)
	}

	var count int64
	db.Model(&PasteInvite{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 invite rows, got %d", count)
	}
}

func TestListInvitesResolvesUsernames(t *testing.T) {
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

	entries, err := service.ListInvites(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 invites, got %d", len(entries))
	}
	names := map[string]string{}
	for _, entry := range entries {
		names[entry.UserID] = entry.Username
	}
	if names["u1"] != "alice" || names["u2"] != "bob" {
		t.Fatalf("expected usernames resolved, got %v", names)
	}
}

func TestRemoveInvitesIgnoresUnknownUsers(t *testing.T) {
	service, db := newTestService(t, []string{"p1"}, nil)

	owner := "owner-1"
	_, err := service.Create(context.Background(), CreateRequest{
		Content:        "body",
		OwnerID:        &owner,
		Visibility:     VisibilityInviteOnly,
		InvitedUserIDs: []string{"u1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.RemoveInvites(context.Background(), "p1", []string{"u1", "ghost"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int64
	db.Model(&PasteInvite{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected all listed invites removed, got %d", count)
	}
}

func TestHasInvite(t *testing.T) {
	service, _ := newTestService(t, []string{"p1"}, nil)

	owner := "owner-1"
	_, err := service.Create(context.Background(), CreateRequest{
		Content:        "body",
		OwnerID:        &owner,
		Visibility:     VisibilityInviteOnly,
		InvitedUserIDs: []string{"u1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	invited, err := service.HasInvite(context.Background(), "p1", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !invited {
		t.Fatalf("expected invite to be found")
	}

	invited, err = service.HasInvite(context.Background(), "p1", "stranger")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if invited {
		t.Fatalf("expected no invite for a stranger")
	}
}
