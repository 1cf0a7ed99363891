package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

func TestPostgresInsertIncidents(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgres(mock)
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_incidents"},
		[]string{"id", "x", "y", "occurred_at", "geom"}).
		WillReturnResult(2)
	mock.ExpectExec("INSERT INTO \"incidents\"").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.InsertIncidents(context.Background(), []model.Incident{
		{ID: 1, X: 100, Y: 200, OccurredAt: when},
		{ID: 2, X: 150, Y: 250, OccurredAt: when},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListIncidents(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgres(mock)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	when := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, x, y, occurred_at FROM incidents").
		WithArgs(from).
		WillReturnRows(pgxmock.NewRows([]string{"id", "x", "y", "occurred_at"}).
			AddRow(int64(7), 10.0, 20.0, when))

	incidents, err := s.ListIncidents(context.Background(), IncidentFilter{From: from})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, int64(7), incidents[0].ID)
	assert.Equal(t, when, incidents[0].OccurredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendZonesFlipsThenInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgres(mock)
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE zones SET status").
		WithArgs("superseded", "current").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec("INSERT INTO zones").
		WithArgs("z-1", "batch-1", 2, 9, 1.5, 3.0, "current", created, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = s.AppendZones(context.Background(), []model.Zone{{
		ID: "z-1", BatchID: "batch-1", Class: 2, ClassCount: 9,
		ValueMin: 1.5, ValueMax: 3.0, Status: model.ZoneCurrent, CreatedAt: created,
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendZonesRollsBackOnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgres(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE zones SET status").
		WithArgs("superseded", "current").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("INSERT INTO zones").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = s.AppendZones(context.Background(), []model.Zone{{
		ID: "z-1", BatchID: "batch-1", Status: model.ZoneCurrent,
	}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckZoneConsistency(t *testing.T) {
	tests := []struct {
		name       string
		current    int
		superseded int
		wantErr    error
	}{
		{name: "empty table", current: 0, superseded: 0, wantErr: nil},
		{name: "healthy", current: 4, superseded: 8, wantErr: nil},
		{name: "flip without append", current: 0, superseded: 8, wantErr: ErrInconsistentZoneState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectQuery("SELECT").
				WithArgs("current", "superseded").
				WillReturnRows(pgxmock.NewRows([]string{"current", "superseded"}).
					AddRow(tt.current, tt.superseded))

			err = NewPostgres(mock).CheckZoneConsistency(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresSaveClassificationsTransactional(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgres(mock)
	band := 400.0

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM classifications").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO classifications").
		WithArgs(int64(5), "NR", &band, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 12).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = s.SaveClassifications(context.Background(), []model.Classification{{
		IncidentID: 5, Type: model.TypeNearRepeat, SpatialBand: &band, ZValue: 12,
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
