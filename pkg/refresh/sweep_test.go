package refresh

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"officeradar/pkg/model"
	"officeradar/pkg/store"
)

const emptyElements = `{"elements":[]}`

func TestRunScheduledBatchCursor(t *testing.T) {
	ovSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyElements)
	}))
	defer ovSrv.Close()

	ctx := context.Background()
	st := newTestStore(t)
	engine := newEngine(st, testConfig(), ovSrv.URL, "")

	seedCenter(t, ctx, st, "a-1", 10, 10)
	c2 := seedCenter(t, ctx, st, "b-2", 20, 20)
	c3 := seedCenter(t, ctx, st, "c-3", 30, 30)

	// First batch covers two centers, the second the remaining one, the
	// third finds nothing and resets.
	_, err := engine.RunScheduledBatch(ctx)
	require.NoError(t, err)
	cursor, present, err := st.GetRefreshCursor(ctx)
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, c2.ID, cursor.Value)

	_, err = engine.RunScheduledBatch(ctx)
	require.NoError(t, err)
	cursor, _, err = st.GetRefreshCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, c3.ID, cursor.Value)

	_, err = engine.RunScheduledBatch(ctx)
	require.NoError(t, err)
	cursor, _, err = st.GetRefreshCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor.Value)
}

func TestRunScheduledBatchContinuesOnFailure(t *testing.T) {
	// The first center's query (lat 10) fails outright; the batch must
	// still reach the second center and advance the cursor.
	ovSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "10.000000") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"elements":[{"type":"node","id":1,"lat":20.001,"lon":20.0,"tags":{"name":"Acme Corp"}}]}`)
	}))
	defer ovSrv.Close()

	ctx := context.Background()
	st := newTestStore(t)
	engine := newEngine(st, testConfig(), ovSrv.URL, "")

	seedCenter(t, ctx, st, "bad", 10, 10)
	good := seedCenter(t, ctx, st, "good", 20, 20)
	seedCompany(t, ctx, st, "Acme")

	stats, err := engine.RunScheduledBatch(ctx)
	require.NoError(t, err, "a failing center must not fail the batch")
	assert.Equal(t, 1, stats.LinksUpserted)

	cursor, _, err := st.GetRefreshCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, good.ID, cursor.Value)
}

func TestRunAllFullClean(t *testing.T) {
	ovSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyElements)
	}))
	defer ovSrv.Close()

	ctx := context.Background()
	st := newTestStore(t)
	engine := newEngine(st, testConfig(), ovSrv.URL, "")

	c1 := seedCenter(t, ctx, st, "a-1", 10, 10)
	c2 := seedCenter(t, ctx, st, "b-2", 20, 20)

	// Leftovers from an earlier run that full-clean must purge.
	old := model.Office{OSMType: model.OSMNode, OSMID: 5, Name: "Stale", Lat: 10, Lon: 10}
	require.NoError(t, st.UpsertOfficesAndLinks(ctx,
		[]model.Office{old},
		[]model.CenterOffice{{CenterID: c1.ID, OSMType: old.OSMType, OSMID: old.OSMID, DistanceM: 10, LastSeen: time.Now()}}))
	require.NoError(t, st.SetRefreshCursor(ctx, 55))

	res, err := engine.RunAll(ctx, AllOptions{FullClean: true, BatchSize: 1})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.FullClean)
	assert.Equal(t, 2, res.CentersProcessed)
	assert.Equal(t, 0, res.CentersFailed)

	offices, links, err := st.CountOfficesAndLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), offices)
	assert.Equal(t, int64(0), links)

	cursor, _, err := st.GetRefreshCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, c2.ID, cursor.Value, "cursor lands on the last swept center")
}

func TestRunAllRetriesFailedCenter(t *testing.T) {
	var calls atomic.Int32
	ovSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, emptyElements)
	}))
	defer ovSrv.Close()

	ctx := context.Background()
	st := newTestStore(t)
	engine := newEngine(st, testConfig(), ovSrv.URL, "")

	seedCenter(t, ctx, st, "a-1", 10, 10)

	res, err := engine.RunAll(ctx, AllOptions{RetryCount: 1})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 0, res.CentersFailed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunAllReportsFailures(t *testing.T) {
	var calls atomic.Int32
	ovSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ovSrv.Close()

	ctx := context.Background()
	st := newTestStore(t)
	engine := newEngine(st, testConfig(), ovSrv.URL, "")

	seedCenter(t, ctx, st, "a-1", 10, 10)

	res, err := engine.RunAll(ctx, AllOptions{RetryCount: 1})
	require.NoError(t, err, "failures are reported, not returned")
	assert.False(t, res.OK)
	assert.Equal(t, 1, res.CentersProcessed)
	assert.Equal(t, 1, res.CentersFailed)
	assert.Equal(t, int32(2), calls.Load(), "one retry after the first failure")
}

func TestClampAll(t *testing.T) {
	st := newTestStore(t)
	engine := newEngine(st, testConfig(), "http://127.0.0.1:0", "")

	got := engine.clampAll(AllOptions{
		Throttle:   time.Minute,
		RetryDelay: -time.Second,
		BatchSize:  999,
		RetryCount: -3,
		MaxOffices: 99999,
	})
	assert.Equal(t, 15*time.Second, got.Throttle)
	assert.Equal(t, time.Duration(0), got.RetryDelay)
	assert.Equal(t, 200, got.BatchSize)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, 10000, got.MaxOffices)

	got = engine.clampAll(AllOptions{})
	assert.Equal(t, 2, got.BatchSize, "zero batch size selects the configured default")
}

func TestAllowedRadiusKm(t *testing.T) {
	for _, km := range []int{10, 25, 50, 100} {
		assert.True(t, AllowedRadiusKm(km), "radius %d", km)
	}
	for _, km := range []int{0, 1, 24, 101, -10} {
		assert.False(t, AllowedRadiusKm(km), "radius %d", km)
	}
}

func TestListOfficesAfterSweepHonorsBans(t *testing.T) {
	// A ban created between sweeps takes effect on the next sweep.
	ovSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"elements":[{"type":"node","id":9,"lat":10.001,"lon":10.0,"tags":{"name":"Acme Corp"}}]}`)
	}))
	defer ovSrv.Close()

	ctx := context.Background()
	st := newTestStore(t)
	engine := newEngine(st, testConfig(), ovSrv.URL, "")

	center := seedCenter(t, ctx, st, "a-1", 10, 10)
	seedCompany(t, ctx, st, "Acme")

	_, err := engine.RunAll(ctx, AllOptions{})
	require.NoError(t, err)

	ref := model.OSMRef{Type: model.OSMNode, ID: 9}
	flagID, err := st.InsertFlag(ctx, &model.DeletionFlag{CenterID: &center.ID, OSMType: ref.Type, OSMID: ref.ID, Status: model.FlagPending})
	require.NoError(t, err)
	_, _, err = st.ApproveFlag(ctx, flagID, ref, time.Now())
	require.NoError(t, err)

	res, err := engine.RunAll(ctx, AllOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.LinksUpserted)

	offices, err := st.ListOfficesForCenter(ctx, store.OfficeQuery{CenterID: center.ID, RadiusM: 100000})
	require.NoError(t, err)
	assert.Empty(t, offices)
}
