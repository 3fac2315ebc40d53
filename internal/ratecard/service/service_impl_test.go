package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/counselops/lexbill/internal/clock"
	ratecarddomain "github.com/counselops/lexbill/internal/ratecard/domain"
)

func newTestService(t *testing.T, now time.Time) (ratecarddomain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&ratecarddomain.RateCard{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(now),
	})
	return svc, node
}

func seedCard(t *testing.T, svc ratecarddomain.Service, card ratecarddomain.RateCard) ratecarddomain.RateCard {
	t.Helper()
	created, err := svc.Create(context.Background(), card)
	require.NoError(t, err)
	return created
}

func TestResolve_PrecedenceCascade(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, node := newTestService(t, now)
	ctx := context.Background()

	userID := node.Generate()
	caseID := node.Generate()
	activity := "research"

	// Within a level ties break on effective_from, so each broader card
	// gets a later start than the narrower ones it must outrank.
	mostSpecific := seedCard(t, svc, ratecarddomain.RateCard{
		UserID: userID, CaseID: &caseID, ActivityCode: &activity, RatePerHour: 400,
		EffectiveFrom: now.AddDate(0, -6, 0),
	})
	withActivity := seedCard(t, svc, ratecarddomain.RateCard{
		UserID: userID, ActivityCode: &activity, RatePerHour: 200,
		EffectiveFrom: now.AddDate(0, -5, 0),
	})
	withCase := seedCard(t, svc, ratecarddomain.RateCard{
		UserID: userID, CaseID: &caseID, RatePerHour: 300,
		EffectiveFrom: now.AddDate(0, -4, 0),
	})
	base := seedCard(t, svc, ratecarddomain.RateCard{
		UserID: userID, RatePerHour: 100,
		EffectiveFrom: now.AddDate(0, -3, 0),
	})

	// All four dimensions supplied: the fully qualified card wins.
	res, err := svc.Resolve(ctx, ratecarddomain.ResolveRequest{
		UserID: userID, CaseID: &caseID, ActivityCode: &activity,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Source)
	assert.Equal(t, mostSpecific.ID, res.Source.ID)
	assert.Equal(t, 400.0, res.RatePerHour)

	// Case without activity: the (user, case) card outranks the base card.
	res, err = svc.Resolve(ctx, ratecarddomain.ResolveRequest{UserID: userID, CaseID: &caseID})
	require.NoError(t, err)
	require.NotNil(t, res.Source)
	assert.Equal(t, withCase.ID, res.Source.ID)

	// Activity without case: the (user, activity) card wins.
	res, err = svc.Resolve(ctx, ratecarddomain.ResolveRequest{UserID: userID, ActivityCode: &activity})
	require.NoError(t, err)
	require.NotNil(t, res.Source)
	assert.Equal(t, withActivity.ID, res.Source.ID)

	// User only: falls through to the base card.
	res, err = svc.Resolve(ctx, ratecarddomain.ResolveRequest{UserID: userID})
	require.NoError(t, err)
	require.NotNil(t, res.Source)
	assert.Equal(t, base.ID, res.Source.ID)
}

func TestResolve_NoMatchMeansUndetermined(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, node := newTestService(t, now)

	res, err := svc.Resolve(context.Background(), ratecarddomain.ResolveRequest{
		UserID: node.Generate(),
	})
	require.NoError(t, err)
	assert.Nil(t, res.Source)
	assert.Zero(t, res.RatePerHour)
}

func TestResolve_EffectiveWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, node := newTestService(t, now)
	ctx := context.Background()

	userID := node.Generate()
	expiredTo := now.AddDate(0, -1, 0)

	// Expired card and a not-yet-effective card never resolve.
	seedCard(t, svc, ratecarddomain.RateCard{
		UserID: userID, RatePerHour: 50,
		EffectiveFrom: now.AddDate(-1, 0, 0), EffectiveTo: &expiredTo,
	})
	seedCard(t, svc, ratecarddomain.RateCard{
		UserID: userID, RatePerHour: 75, EffectiveFrom: now.AddDate(0, 1, 0),
	})

	res, err := svc.Resolve(ctx, ratecarddomain.ResolveRequest{UserID: userID})
	require.NoError(t, err)
	assert.Nil(t, res.Source)

	// Within a level the newest effective_from wins.
	seedCard(t, svc, ratecarddomain.RateCard{
		UserID: userID, RatePerHour: 100, EffectiveFrom: now.AddDate(0, -3, 0),
	})
	newest := seedCard(t, svc, ratecarddomain.RateCard{
		UserID: userID, RatePerHour: 120, EffectiveFrom: now.AddDate(0, -1, 0),
	})

	res, err = svc.Resolve(ctx, ratecarddomain.ResolveRequest{UserID: userID})
	require.NoError(t, err)
	require.NotNil(t, res.Source)
	assert.Equal(t, newest.ID, res.Source.ID)
	assert.Equal(t, 120.0, res.RatePerHour)
}

func TestResolve_HistoricalLookup(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, node := newTestService(t, now)

	userID := node.Generate()
	oldTo := now.AddDate(0, -2, 0)
	old := seedCard(t, svc, ratecarddomain.RateCard{
		UserID: userID, RatePerHour: 90,
		EffectiveFrom: now.AddDate(-1, 0, 0), EffectiveTo: &oldTo,
	})
	seedCard(t, svc, ratecarddomain.RateCard{
		UserID: userID, RatePerHour: 110, EffectiveFrom: now.AddDate(0, -1, 0),
	})

	at := now.AddDate(0, -3, 0)
	res, err := svc.Resolve(context.Background(), ratecarddomain.ResolveRequest{
		UserID: userID, At: &at,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Source)
	assert.Equal(t, old.ID, res.Source.ID)
}
