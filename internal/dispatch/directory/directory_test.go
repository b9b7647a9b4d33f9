package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/models"
	"service-dispatch/internal/store/memory"
)

type flakyStore struct {
	*memory.Store
	failures int
	calls    int
}

func (f *flakyStore) ListEligible(ctx context.Context, st models.ServiceType) ([]models.Provider, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	return f.Store.ListEligible(ctx, st)
}

func provider(id string, services []models.ServiceType, coverage ...string) *models.Provider {
	return &models.Provider{
		ID:            id,
		DisplayName:   id,
		ChannelID:     "ch-" + id,
		Services:      services,
		CoverageAreas: coverage,
		IsAvailable:   true,
		IsActive:      true,
		Rating:        4.0,
	}
}

func seededDirectory(t *testing.T, st *flakyStore) *Directory {
	t.Helper()
	d := New(st, NewZoneMatcher(testZones), logger.NewTestLogger(t)).WithRetryDelay(time.Millisecond)
	ctx := context.Background()
	plumbing := []models.ServiceType{models.ServicePlumbing}

	require.NoError(t, d.Register(ctx, provider("p-city", plumbing, "Douala")))
	require.NoError(t, d.Register(ctx, provider("p-exact", plumbing, "Bonamoussadi")))
	require.NoError(t, d.Register(ctx, provider("p-elec", []models.ServiceType{models.ServiceElectrical}, "Bonamoussadi")))
	require.NoError(t, d.Register(ctx, provider("p-yaounde", plumbing, "Bastos")))
	require.NoError(t, d.Register(ctx, provider("p-busy", plumbing, "Bonamoussadi")))
	require.NoError(t, d.SetAvailability(ctx, "p-busy", false))
	require.NoError(t, d.Register(ctx, provider("p-gone", plumbing, "Bonamoussadi")))
	require.NoError(t, d.Deactivate(ctx, "p-gone"))
	return d
}

func TestFindCandidates_FiltersAndOrdersByZone(t *testing.T) {
	d := seededDirectory(t, &flakyStore{Store: memory.New()})

	got, err := d.FindCandidates(context.Background(), models.ServicePlumbing, "Bonamoussadi")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p-exact", got[0].Provider.ID)
	assert.Equal(t, ZoneExact, got[0].Zone)
	assert.Equal(t, "p-city", got[1].Provider.ID)
	assert.Equal(t, ZoneCity, got[1].Zone)
}

func TestFindCandidates_EmptyIsNotAnError(t *testing.T) {
	d := seededDirectory(t, &flakyStore{Store: memory.New()})

	got, err := d.FindCandidates(context.Background(), models.ServiceApplianceRepair, "Bonamoussadi")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindCandidates_RetriesOnce(t *testing.T) {
	st := &flakyStore{Store: memory.New()}
	d := seededDirectory(t, st)

	st.calls, st.failures = 0, 1
	got, err := d.FindCandidates(context.Background(), models.ServicePlumbing, "Bonamoussadi")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, st.calls)

	st.calls, st.failures = 0, 2
	_, err = d.FindCandidates(context.Background(), models.ServicePlumbing, "Bonamoussadi")
	assert.True(t, errors.Is(err, apperrors.ErrDirectoryUnavailable))
	assert.Equal(t, 2, st.calls)
}

func TestRegister_Validates(t *testing.T) {
	d := New(memory.New(), NewZoneMatcher(nil), logger.NewNoOpLogger())

	err := d.Register(context.Background(), &models.Provider{ID: "p1", Rating: 6})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidRequest))
	assert.Contains(t, err.Error(), "channelId is required")
	assert.Contains(t, err.Error(), "rating must be within [0,5]")
}
