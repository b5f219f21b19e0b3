package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsupport/helpdesk/internal/domain"
)

func TestMemoryStoreRoundtrip(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	principal := &Principal{
		UserID:   7,
		Login:    "ivanov",
		FullName: "Иванов Иван",
		Role:     domain.RoleUser,
		Groups:   []string{"Учителя"},
	}
	id, err := store.Create(context.Background(), principal)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	resolved, err := store.Resolve(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, principal.UserID, resolved.UserID)
	assert.Equal(t, principal.Login, resolved.Login)
	assert.Equal(t, principal.Groups, resolved.Groups)
}

func TestMemoryStoreUnknownID(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	resolved, err := store.Resolve(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	current := time.Now()
	store.now = func() time.Time { return current }

	id, err := store.Create(context.Background(), &Principal{Login: "ivanov"})
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)
	resolved, err := store.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestMemoryStoreDestroy(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	id, err := store.Create(context.Background(), &Principal{Login: "ivanov"})
	require.NoError(t, err)

	require.NoError(t, store.Destroy(context.Background(), id))
	resolved, err := store.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, resolved)

	// destroying again is a no-op
	assert.NoError(t, store.Destroy(context.Background(), id))
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	original := &Principal{Login: "ivanov", Groups: []string{"Учителя"}}
	id, err := store.Create(context.Background(), original)
	require.NoError(t, err)

	resolved, err := store.Resolve(context.Background(), id)
	require.NoError(t, err)
	resolved.Login = "mutated"

	again, err := store.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ivanov", again.Login)
}
