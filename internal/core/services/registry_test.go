package services

import (
	"testing"
	"time"

	"livehub/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAssignsUniqueIDs(t *testing.T) {
	r := NewConnectionRegistry()

	a := r.Register(newTestClient("10.0.0.1"))
	b := r.Register(newTestClient("10.0.0.2"))

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, r.Count())

	c, ok := r.Get(a)
	require.True(t, ok)
	assert.Equal(t, a, c.ID)
	assert.False(t, c.ConnectedAt.IsZero())
}

func TestRegistry_DuplicateIDPanics(t *testing.T) {
	r := NewConnectionRegistry()
	r.newID = func() domain.ConnectionID { return "fixed" }

	r.Register(newTestClient("10.0.0.1"))

	assert.Panics(t, func() { r.Register(newTestClient("10.0.0.2")) })
}

func TestRegistry_SetIdentity(t *testing.T) {
	r := NewConnectionRegistry()
	id := r.Register(newTestClient("10.0.0.1"))

	err := r.SetIdentity("missing", domain.Identity{Username: "ghost", Role: domain.RoleViewer})
	assert.ErrorIs(t, err, domain.ErrUnknownConnection)

	require.NoError(t, r.SetIdentity(id, domain.Identity{Username: "ana", Role: domain.RoleViewer}))
	require.NoError(t, r.SetIdentity(id, domain.Identity{Username: "ana", Role: domain.RoleViewer}))
	err = r.SetIdentity(id, domain.Identity{Username: "ana2", Role: domain.RoleViewer})
	assert.ErrorIs(t, err, domain.ErrAlreadyIdentified)

	c, _ := r.Get(id)
	identity, ok := c.Identity()
	require.True(t, ok)
	assert.Equal(t, "ana", identity.Username)
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewConnectionRegistry()
	id := r.Register(newTestClient("10.0.0.1"))

	_, removed := r.Unregister(id)
	assert.True(t, removed)
	_, removed = r.Unregister(id)
	assert.False(t, removed)
	assert.Zero(t, r.Count())
}

func TestRegistry_SnapshotCollapsesSameIdentity(t *testing.T) {
	r := NewConnectionRegistry()
	clock := newTestClock()
	r.now = clock.Now

	first := r.Register(newTestClient("10.0.0.1"))
	clock.Advance(time.Second)
	second := r.Register(newTestClient("10.0.0.2"))
	clock.Advance(time.Second)
	other := r.Register(newTestClient("10.0.0.3"))
	clock.Advance(time.Second)
	r.Register(newTestClient("10.0.0.4")) // never identifies

	require.NoError(t, r.SetIdentity(second, domain.Identity{Username: "ana", Fingerprint: "fp-ana"}))
	require.NoError(t, r.SetIdentity(first, domain.Identity{Username: "ana", Fingerprint: "fp-ana"}))
	require.NoError(t, r.SetIdentity(other, domain.Identity{Username: "bo"}))

	snap := r.Snapshot()

	assert.Equal(t, 4, snap.Count)
	require.Len(t, snap.Users, 2)
	assert.Equal(t, "ana", snap.Users[0].Username)
	assert.Equal(t, first, snap.Users[0].ConnectionID)
	assert.Equal(t, "bo", snap.Users[1].Username)
}

func TestRegistry_SnapshotSameNameWithoutFingerprint(t *testing.T) {
	r := NewConnectionRegistry()
	a := r.Register(newTestClient("10.0.0.1"))
	b := r.Register(newTestClient("10.0.0.2"))

	require.NoError(t, r.SetIdentity(a, domain.Identity{Username: "Guest"}))
	require.NoError(t, r.SetIdentity(b, domain.Identity{Username: "guest"}))

	snap := r.Snapshot()
	assert.Equal(t, 2, snap.Count)
	assert.Len(t, snap.Users, 1)
}

func TestRegistry_SnapshotEmpty(t *testing.T) {
	snap := NewConnectionRegistry().Snapshot()
	assert.Zero(t, snap.Count)
	assert.NotNil(t, snap.Users)
	assert.Empty(t, snap.Users)
}

func TestRegistry_Matching(t *testing.T) {
	r := NewConnectionRegistry()
	byIP := r.Register(newTestClient("10.0.0.1"))
	byFP := r.Register(newTestClient("10.0.0.2"))
	r.Register(newTestClient("10.0.0.3"))
	require.NoError(t, r.SetIdentity(byFP, domain.Identity{Username: "x", Fingerprint: "fp-x"}))

	matches := r.Matching("fp-x", "10.0.0.1")
	ids := make([]domain.ConnectionID, 0, len(matches))
	for _, c := range matches {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []domain.ConnectionID{byIP, byFP}, ids)
	assert.Empty(t, r.Matching("", ""))
}

func TestRegistry_ForEachExcept(t *testing.T) {
	r := NewConnectionRegistry()
	a := r.Register(newTestClient("10.0.0.1"))
	r.Register(newTestClient("10.0.0.2"))

	seen := 0
	r.ForEachExcept(a, func(c *Client) {
		assert.NotEqual(t, a, c.ID)
		seen++
	})
	assert.Equal(t, 1, seen)
}

func TestRegistry_ForEachExceptAllowsUnregister(t *testing.T) {
	r := NewConnectionRegistry()
	r.Register(newTestClient("10.0.0.1"))
	r.Register(newTestClient("10.0.0.2"))

	r.ForEachExcept("", func(c *Client) {
		_, ok := r.Unregister(c.ID)
		assert.True(t, ok)
	})
	assert.Equal(t, 0, r.Count())
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	closed := 0
	c := NewClient("10.0.0.1", "", 1, func() error {
		closed++
		return nil
	})

	c.Close([]byte(`{"type":"banned"}`), 0)
	c.Close(nil, 0)

	assert.True(t, c.Closed())
	assert.Equal(t, 1, closed)
	assert.Equal(t, `{"type":"banned"}`, string(c.Final()))
	assert.Equal(t, clientGone, c.enqueue([]byte("x"), 0))
}
