package pastes

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

type fakeUserDirectory struct {
	users map[string]string
}

func (d *fakeUserDirectory) Exists(_ context.Context, userID string) (bool, error) {
	_, ok := d.users[userID]
	return ok, nil
}

func (d *fakeUserDirectory) UsernamesFor(_ context.Context, userIDs []string) (map[string]string, error) {
	resolved := make(map[string]string, len(userIDs))
	for _, userID := range userIDs {
		if name, ok := d.users[userID]; ok {
			resolved[userID] = name
		}
	}
	return resolved, nil
}

var testNow = time.Unix(1756500000, 0).UTC()

func newTestService(t *testing.T, ids []string, knownUsers map[string]string) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:quillbin_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Paste{}, &PasteVersion{}, &PasteInvite{}, &PasteView{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	generator := &staticIDGenerator{ids: ids}
	clock := func() time.Time { return testNow }

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: generator,
		Users:      &fakeUserDirectory{users: knownUsers},
	})
	if err != nil {
		t.Fatalf("failed to construct paste service: %v", err)
	}

	return service, db
}

func strPtr(value string) *string {
	return &value
}

func timePtr(value time.Time) *time.Time {
	return &value
}
