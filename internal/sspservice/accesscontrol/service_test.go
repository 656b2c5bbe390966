package accesscontrol_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspservice/accesscontrol"
	"sspbackend/internal/sspshared/store"
)

func newTestService(t *testing.T, controllers ...sspdomain.Principal) (*accesscontrol.Service, context.Context) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	st := store.NewGormStore(db)
	require.NoError(t, st.AutoMigrate())

	return accesscontrol.NewService(st, controllers), context.Background()
}

func TestService_AssertController(t *testing.T) {
	t.Parallel()

	controller, err := sspdomain.NewPrincipal([]byte{1})
	require.NoError(t, err)

	other, err := sspdomain.NewPrincipal([]byte{2})
	require.NoError(t, err)

	svc, _ := newTestService(t, controller)

	require.NoError(t, svc.AssertController(controller))
	require.Error(t, svc.AssertController(other))
}

func TestService_SetBackendPrincipal_TrapsOnSecondSet(t *testing.T) {
	t.Parallel()

	svc, ctx := newTestService(t)

	backend, err := sspdomain.NewPrincipal([]byte{9, 9})
	require.NoError(t, err)

	require.NoError(t, svc.SetBackendPrincipal(ctx, backend))

	other, err := sspdomain.NewPrincipal([]byte{8, 8})
	require.NoError(t, err)

	err = svc.SetBackendPrincipal(ctx, other)
	require.Error(t, err)

	got, found, err := svc.GetBackendPrincipal(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, got.Equal(backend))
}

func TestService_AssertUserOrBackend(t *testing.T) {
	t.Parallel()

	svc, ctx := newTestService(t)

	owner, err := sspdomain.NewPrincipal([]byte{1})
	require.NoError(t, err)

	backend, err := sspdomain.NewPrincipal([]byte{2})
	require.NoError(t, err)

	stranger, err := sspdomain.NewPrincipal([]byte{3})
	require.NoError(t, err)

	require.NoError(t, svc.SetBackendPrincipal(ctx, backend))

	require.NoError(t, svc.AssertUserOrBackend(ctx, owner, owner))
	require.NoError(t, svc.AssertUserOrBackend(ctx, backend, owner))
	require.Error(t, svc.AssertUserOrBackend(ctx, stranger, owner))
}
