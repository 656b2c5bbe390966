package userdirectory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspservice/userdirectory"
	"sspbackend/internal/sspshared/store"
)

func newDbID(t *testing.T) sspdomain.Uuid {
	t.Helper()

	id, err := sspdomain.NewUuid()
	require.NoError(t, err)

	return id
}

func newTestService(t *testing.T) (*userdirectory.Service, context.Context) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	st := store.NewGormStore(db)
	require.NoError(t, st.AutoMigrate())

	return userdirectory.NewService(st), context.Background()
}

func TestService_GetOrCreateUser_CreatesOnce(t *testing.T) {
	t.Parallel()

	svc, ctx := newTestService(t)

	principal, err := sspdomain.NewPrincipal([]byte{1, 2, 3})
	require.NoError(t, err)

	dbID := newDbID(t)

	u1, err := svc.GetOrCreateUser(ctx, principal, "auth0|abc", dbID)
	require.NoError(t, err)

	u2, err := svc.GetOrCreateUser(ctx, principal, "auth0|abc", dbID)
	require.NoError(t, err)

	require.Equal(t, u1.DbID.String(), u2.DbID.String(), "second call must return the same record, not mint a new one")
}

func TestService_GetOrCreateUser_RejectsSubMismatchForExistingPrincipal(t *testing.T) {
	t.Parallel()

	svc, ctx := newTestService(t)

	principal, err := sspdomain.NewPrincipal([]byte{1, 2, 3})
	require.NoError(t, err)

	_, err = svc.GetOrCreateUser(ctx, principal, "auth0|abc", newDbID(t))
	require.NoError(t, err)

	_, err = svc.GetOrCreateUser(ctx, principal, "auth0|different", newDbID(t))
	require.Error(t, err)
}

func TestService_GetOrCreateUser_RejectsSubAlreadyBoundToOtherPrincipal(t *testing.T) {
	t.Parallel()

	svc, ctx := newTestService(t)

	p1, err := sspdomain.NewPrincipal([]byte{1})
	require.NoError(t, err)

	p2, err := sspdomain.NewPrincipal([]byte{2})
	require.NoError(t, err)

	_, err = svc.GetOrCreateUser(ctx, p1, "auth0|shared", newDbID(t))
	require.NoError(t, err)

	_, err = svc.GetOrCreateUser(ctx, p2, "auth0|shared", newDbID(t))
	require.Error(t, err)
}

func TestService_LookupsBySubAndDbID(t *testing.T) {
	t.Parallel()

	svc, ctx := newTestService(t)

	principal, err := sspdomain.NewPrincipal([]byte{7, 7, 7})
	require.NoError(t, err)

	created, err := svc.GetOrCreateUser(ctx, principal, "auth0|xyz", newDbID(t))
	require.NoError(t, err)

	bySub, found, err := svc.GetBySub(ctx, "auth0|xyz")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, created.DbID.String(), bySub.DbID.String())

	byDbID, found, err := svc.GetByDbID(ctx, created.DbID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, created.JWTSub, byDbID.JWTSub)

	_, found, err = svc.GetBySub(ctx, "auth0|nonexistent")
	require.NoError(t, err)
	require.False(t, found)
}
