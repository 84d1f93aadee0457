//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, Progress(5, 0))
	assert.Equal(t, 50.0, Progress(5, 10))
	assert.Equal(t, 100.0, Progress(12, 10))
}

func TestScrapingJob_Active(t *testing.T) {
	assert.True(t, (&ScrapingJob{Status: JobPending}).Active())
	assert.True(t, (&ScrapingJob{Status: JobRunning}).Active())
	assert.False(t, (&ScrapingJob{Status: JobCompleted}).Active())
	assert.False(t, (&ScrapingJob{Status: JobPaused}).Active())
}

func TestExport_Downloadable(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	assert.True(t, (&Export{Status: ExportCompleted, ExpiresAt: &later}).Downloadable(now))
	assert.False(t, (&Export{Status: ExportCompleted, ExpiresAt: &earlier}).Downloadable(now))
	assert.False(t, (&Export{Status: ExportPending}).Downloadable(now))
}

func TestSQLResponse_Decode(t *testing.T) {
	var tabular SQLResponse
	require.NoError(t, json.Unmarshal([]byte(`{"success":true,"columns":["id"],"rows":[[1],[null]],"pagination":{"page":1,"pages":1,"per_page":50,"total":2}}`), &tabular))
	assert.True(t, tabular.Tabular())
	assert.Equal(t, []string{"id"}, tabular.Columns)
	assert.Nil(t, tabular.Rows[1][0])

	var modify SQLResponse
	require.NoError(t, json.Unmarshal([]byte(`{"success":true,"rowcount":3}`), &modify))
	assert.False(t, modify.Tabular())
	assert.Equal(t, int64(3), *modify.Rowcount)
}
