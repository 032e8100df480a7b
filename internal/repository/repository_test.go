package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"billing-service/internal/models"
	"billing-service/internal/testutil"
)

func TestTenantRepository_OwnershipAndCodes(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTenantRepository(db)
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, "owner@example.com")
	count, err := repo.CountOwnedBy(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	tenant := testutil.CreateTenant(t, db, "ABCD1234", owner)

	count, err = repo.CountOwnedBy(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	exists, err := repo.CodeExists(ctx, "ABCD1234")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.CodeExists(ctx, "ZZZZ9999")
	require.NoError(t, err)
	assert.False(t, exists)

	found, err := repo.GetByCode(ctx, "ABCD1234")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, tenant.ID, found.ID)
	assert.Equal(t, "Tenant ABCD1234", found.Account.Data().Title)

	membership, err := repo.GetMembership(ctx, tenant.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, membership)
	assert.Equal(t, models.RoleOwner, membership.Role)
}

func TestTenantRepository_DuplicateCodeIsDetected(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTenantRepository(db)
	ctx := context.Background()

	testutil.CreateTenant(t, db, "DUPL0001", nil)

	err := repo.Create(ctx, &models.Tenant{
		Code:    "DUPL0001",
		Name:    "Other",
		Slug:    "other-dupl0001",
		Account: datatypes.NewJSONType(models.TenantAccount{Title: "Other"}),
	})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err), "got %v", err)
}

func TestTenantRepository_ListAndUpdateStatus(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTenantRepository(db)
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, "lister@example.com")
	for i := 0; i < 3; i++ {
		testutil.CreateTenant(t, db, fmt.Sprintf("LIST000%d", i), nil)
	}
	mine := testutil.CreateTenant(t, db, "MINE0001", owner)

	require.NoError(t, repo.UpdateStatus(ctx, mine.ID, models.TenantStatusSuspended))
	err := repo.UpdateStatus(ctx, uuid.New(), models.TenantStatusSuspended)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	suspended := models.TenantStatusSuspended
	tenants, total, err := repo.List(ctx, TenantFilters{Status: &suspended})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, tenants, 1)
	assert.Equal(t, mine.ID, tenants[0].ID)

	tenants, total, err = repo.List(ctx, TenantFilters{UserID: &owner.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, mine.ID, tenants[0].ID)

	_, total, err = repo.List(ctx, TenantFilters{Search: "LIST", Pagination: Pagination{Page: 1, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestTenantAddonRepository_ActiveScopeMatchesModel(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTenantAddonRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	tenant := testutil.CreateTenant(t, db, "SCOP0001", nil)
	feature := testutil.CreateFeature(t, db, "seats")

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	cases := []struct {
		active  bool
		expires *time.Time
	}{
		{true, nil}, {true, &past}, {true, &now}, {true, &future},
		{false, nil}, {false, &past}, {false, &now}, {false, &future},
	}

	want := map[uuid.UUID]bool{}
	for i, c := range cases {
		addon := testutil.CreateAddon(t, db, feature, fmt.Sprintf("scope-%d", i), 1)
		assignment := &models.TenantAddon{
			TenantID:  tenant.ID,
			AddonID:   addon.ID,
			Quantity:  1,
			StartedAt: now.Add(-24 * time.Hour),
			ExpiresAt: c.expires,
			IsActive:  c.active,
		}
		require.NoError(t, repo.Create(ctx, assignment))
		want[assignment.ID] = assignment.IsActiveAt(now)
	}

	active, err := repo.ActiveForTenant(ctx, tenant.ID, now)
	require.NoError(t, err)

	got := map[uuid.UUID]bool{}
	for _, a := range active {
		got[a.ID] = true
		assert.True(t, a.IsActiveAt(now))
		require.NotNil(t, a.Addon)
	}
	for id, isActive := range want {
		assert.Equal(t, isActive, got[id], "assignment %s", id)
	}

	byFeature, err := repo.ActiveForFeature(ctx, tenant.ID, feature.ID, now)
	require.NoError(t, err)
	assert.Len(t, byFeature, len(active))
}

func TestTenantAddonRepository_DeactivateAndDelete(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTenantAddonRepository(db)
	ctx := context.Background()

	tenant := testutil.CreateTenant(t, db, "CANC0001", nil)
	feature := testutil.CreateFeature(t, db, "storage")
	addon := testutil.CreateAddon(t, db, feature, "storage-pack", 10)

	require.NoError(t, repo.Create(ctx, &models.TenantAddon{
		TenantID: tenant.ID, AddonID: addon.ID, Quantity: 1, StartedAt: time.Now().UTC(), IsActive: true,
	}))

	changed, err := repo.DeactivateActive(ctx, tenant.ID, addon.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.DeactivateActive(ctx, tenant.ID, addon.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	removed, err := repo.Delete(ctx, tenant.ID, addon.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, tenant.ID, addon.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestInvitationRepository_PendingForEmail(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	tenant := testutil.CreateTenant(t, db, "INVT0001", nil)
	accepted := now.Add(-time.Hour)

	invites := []*models.TenantInvitation{
		{TenantID: tenant.ID, Email: "Guest@Example.com", Role: models.RoleMember, Token: "t1", ExpiresAt: now.Add(time.Hour)},
		{TenantID: tenant.ID, Email: "guest@example.com", Role: models.RoleMember, Token: "t2", ExpiresAt: now.Add(-time.Hour)},
		{TenantID: tenant.ID, Email: "guest@example.com", Role: models.RoleMember, Token: "t3", ExpiresAt: now.Add(time.Hour), AcceptedAt: &accepted},
		{TenantID: tenant.ID, Email: "other@example.com", Role: models.RoleMember, Token: "t4", ExpiresAt: now.Add(time.Hour)},
	}
	for _, inv := range invites {
		require.NoError(t, repo.Create(ctx, inv))
	}

	pending, err := repo.PendingForEmail(ctx, "GUEST@example.com", now)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "t1", pending[0].Token)

	require.NoError(t, repo.MarkAccepted(ctx, pending[0].ID, now))
	err = repo.MarkAccepted(ctx, pending[0].ID, now)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestSettingRepository_Upsert(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewSettingRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.Setting{
		Key: "site_name", Value: datatypes.JSON(`"One"`), Type: models.SettingTypeString, IsPublic: true,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.Setting{
		Key: "site_name", Value: datatypes.JSON(`"Two"`), Type: models.SettingTypeString,
	}))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	setting, err := repo.GetByKey(ctx, "site_name")
	require.NoError(t, err)
	require.NotNil(t, setting)
	value, err := setting.TypedValue()
	require.NoError(t, err)
	assert.Equal(t, "Two", value)
	assert.True(t, setting.IsPublic, "visibility is kept on update")

	missing, err := repo.GetByKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPagination_Normalize(t *testing.T) {
	offset, limit := Pagination{}.normalize()
	assert.Equal(t, 0, offset)
	assert.Equal(t, defaultPageSize, limit)

	offset, limit = Pagination{Page: 3, Limit: 10}.normalize()
	assert.Equal(t, 20, offset)
	assert.Equal(t, 10, limit)

	_, limit = Pagination{Limit: 1000}.normalize()
	assert.Equal(t, maxPageSize, limit)
}
