package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
	"github.com/datastark/crime-analysis-toolbox/internal/store"
)

type stubStore struct {
	zones           []model.Zone
	batches         []store.ZoneBatch
	classifications []model.Classification
	consistencyErr  error
}

func (f *stubStore) InsertIncidents(context.Context, []model.Incident) (int64, error) {
	return 0, nil
}
func (f *stubStore) ListIncidents(context.Context, store.IncidentFilter) ([]model.Incident, error) {
	return nil, nil
}
func (f *stubStore) SaveClassifications(context.Context, []model.Classification) error { return nil }
func (f *stubStore) ListClassifications(context.Context) ([]model.Classification, error) {
	return f.classifications, nil
}
func (f *stubStore) ReplaceConnectors(context.Context, []model.Connector) error { return nil }
func (f *stubStore) AppendZones(context.Context, []model.Zone) error            { return nil }
func (f *stubStore) CurrentZones(context.Context) ([]model.Zone, error)         { return f.zones, nil }
func (f *stubStore) ZoneHistory(context.Context) ([]store.ZoneBatch, error)     { return f.batches, nil }
func (f *stubStore) CheckZoneConsistency(context.Context) error                 { return f.consistencyErr }
func (f *stubStore) Migrate(context.Context) error                              { return nil }
func (f *stubStore) Close() error                                               { return nil }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := New(&stubStore{}).Handler(nil)
	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestHealthReportsInconsistentZones(t *testing.T) {
	h := New(&stubStore{consistencyErr: store.ErrInconsistentZoneState}).Handler(nil)
	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCurrentZonesGeoJSON(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 10, 0, 10, 10, 0, 10, 0, 0}, []int{10})
	require.NoError(t, mp.Push(poly))

	st := &stubStore{zones: []model.Zone{{
		ID: "z-1", BatchID: "b-1", Class: 2, ClassCount: 5,
		ValueMin: 1, ValueMax: 3, Status: model.ZoneCurrent,
		CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Geometry:  mp,
	}}}
	rec := get(t, New(st).Handler(nil), "/api/zones/current")
	require.Equal(t, http.StatusOK, rec.Code)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Type     string `json:"type"`
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "MultiPolygon", fc.Features[0].Geometry.Type)
	assert.Equal(t, "z-1", fc.Features[0].Properties["zone_id"])
	assert.Equal(t, "current", fc.Features[0].Properties["status"])
}

func TestCurrentZonesEmpty(t *testing.T) {
	rec := get(t, New(&stubStore{}).Handler(nil), "/api/zones/current")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, rec.Body.String())
}

func TestZoneHistory(t *testing.T) {
	st := &stubStore{batches: []store.ZoneBatch{
		{BatchID: "b-2", Status: model.ZoneCurrent, Zones: 5, CreatedAt: time.Now()},
		{BatchID: "b-1", Status: model.ZoneSuperseded, Zones: 4, CreatedAt: time.Now().Add(-time.Hour)},
	}}
	rec := get(t, New(st).Handler(nil), "/api/zones/history")
	require.Equal(t, http.StatusOK, rec.Code)

	var batches []store.ZoneBatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batches))
	require.Len(t, batches, 2)
	assert.Equal(t, "b-2", batches[0].BatchID)
}

func TestSummaryCounts(t *testing.T) {
	st := &stubStore{classifications: []model.Classification{
		{IncidentID: 1, Type: model.TypeOriginator},
		{IncidentID: 2, Type: model.TypeRepeat},
		{IncidentID: 3, Type: model.TypeNearRepeat},
		{IncidentID: 4, Type: model.TypeNearRepeat},
		{IncidentID: 5, Type: model.TypeUnclassified},
	}}
	rec := get(t, New(st).Handler(nil), "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var sum model.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 1, sum.Originators)
	assert.Equal(t, 1, sum.Repeats)
	assert.Equal(t, 2, sum.NearRepeats)
}

func TestCORSHeaders(t *testing.T) {
	h := New(&stubStore{}).Handler([]string{"https://maps.example.gov"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://maps.example.gov")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://maps.example.gov", rec.Header().Get("Access-Control-Allow-Origin"))
}
