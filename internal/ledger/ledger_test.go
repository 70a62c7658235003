package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Acribbs/ONT-VC/internal/pipeline"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	led, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })
	return led
}

func TestLedger_RecordAndLoad(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	rec := Record{
		TaskID: "align/s1",
		Status: pipeline.StatusSucceeded,
		Fingerprints: map[string]pipeline.Fingerprint{
			"mapped.dir/s1.sam": {Size: 1024, ModTimeNS: 1700000000000000000},
		},
		RunToken:    "run-1",
		CompletedAt: time.Now(),
	}
	require.NoError(t, led.RecordCompletion(ctx, rec))

	records, err := led.LoadRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records["align/s1"]
	assert.Equal(t, pipeline.StatusSucceeded, got.Status)
	assert.Equal(t, "run-1", got.RunToken)
	assert.Equal(t, int64(1024), got.Fingerprints["mapped.dir/s1.sam"].Size)
	assert.WithinDuration(t, rec.CompletedAt, got.CompletedAt, time.Second)
}

func TestLedger_UpsertReplacesRecord(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, led.RecordCompletion(ctx, Record{
		TaskID:      "call-variants/s1",
		Status:      pipeline.StatusFailed,
		RunToken:    "run-1",
		CompletedAt: time.Now(),
	}))
	require.NoError(t, led.RecordCompletion(ctx, Record{
		TaskID:      "call-variants/s1",
		Status:      pipeline.StatusSucceeded,
		RunToken:    "run-2",
		CompletedAt: time.Now(),
	}))

	records, err := led.LoadRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, pipeline.StatusSucceeded, records["call-variants/s1"].Status)
	assert.Equal(t, "run-2", records["call-variants/s1"].RunToken)
}

func TestLedger_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	led, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, led.RecordCompletion(ctx, Record{
		TaskID:      "index-reference",
		Status:      pipeline.StatusSucceeded,
		RunToken:    "run-1",
		CompletedAt: time.Now(),
	}))
	require.NoError(t, led.Close())

	led, err = Open(path)
	require.NoError(t, err)
	defer led.Close()

	records, err := led.LoadRecords(ctx)
	require.NoError(t, err)
	assert.Contains(t, records, "index-reference")
}

func TestLedger_NilFingerprintsStoredAsEmpty(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, led.RecordCompletion(ctx, Record{
		TaskID:      "align/s1",
		Status:      pipeline.StatusFailed,
		RunToken:    "run-1",
		CompletedAt: time.Now(),
	}))

	records, err := led.LoadRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, records["align/s1"].Fingerprints)
}

func TestOpen_CorruptStorageFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a database"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
	assert.True(t, IsLedgerError(err))
}

func TestOpen_NewerSchemaVersionFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	led, err := Open(path)
	require.NoError(t, err)
	_, err = led.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, led.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.True(t, IsLedgerError(err))
}
