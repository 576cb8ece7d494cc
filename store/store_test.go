package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackpilot/stackpilot/stage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGetReport(t *testing.T) {
	db := openTestDB(t)

	report := &stage.Report{
		RunID:      "run-1",
		Deployment: "demo",
		Started:    time.Now().Add(-time.Minute).UTC(),
		Finished:   time.Now().UTC(),
		Outcomes: []stage.Outcome{
			{Name: "teardown", Status: stage.StatusComplete},
		},
		Warnings:  []string{"extension uuid-ossp failed to install"},
		Endpoints: map[string]string{"app": "http://localhost:8080"},
	}
	require.NoError(t, db.SaveReport(report))

	got, err := db.GetReport("run-1")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Deployment)
	require.Len(t, got.Outcomes, 1)
	assert.Equal(t, stage.StatusComplete, got.Outcomes[0].Status)
	assert.Equal(t, report.Warnings, got.Warnings)
	assert.Equal(t, "http://localhost:8080", got.Endpoints["app"])
}

func TestGetReportMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetReport("nope")
	assert.Error(t, err)
}

func TestListReportsMostRecentFirst(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, db.SaveReport(&stage.Report{
			RunID:   id,
			Started: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	reports, err := db.ListReports()
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "new", reports[0].RunID)
	assert.Equal(t, "old", reports[2].RunID)

	latest, err := db.LatestReport()
	require.NoError(t, err)
	assert.Equal(t, "new", latest.RunID)
}

func TestLatestReportEmpty(t *testing.T) {
	db := openTestDB(t)
	latest, err := db.LatestReport()
	require.NoError(t, err)
	assert.Nil(t, latest)
}
