package unit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/unitdebug/pkg/log"
)

func TestDumpFile_AppendKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	d := newDumpFile(dir, "u")
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	require.NoError(t, d.Append(newDumpEntry("u", "u-queue", errors.New("first"), "", []byte(`{"a":1}`))))
	require.NoError(t, d.Append(newDumpEntry("u", "u-queue", errors.New("second"), "trace", []byte(`oops`))))

	entries, err := d.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries["2024-01-02T03:04:05Z"]
	assert.Equal(t, "first", first.Error)
	assert.JSONEq(t, `{"a":1}`, string(first.Message))

	second := entries["2024-01-02T03:04:05Z+"]
	assert.Equal(t, "oops", second.Raw)
	assert.Equal(t, "trace", second.Traceback)

	_, err = os.Stat(filepath.Join(dir, "u.dump.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestDumpFile_LoadMissing(t *testing.T) {
	entries, err := newDumpFile(t.TempDir(), "u").Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBackoff_GrowsAndResets(t *testing.T) {
	b := newBackoff(time.Millisecond, 3*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, b.Sleep(ctx))
	assert.Equal(t, 2*time.Millisecond, b.Current())
	require.NoError(t, b.Sleep(ctx))
	assert.Equal(t, 3*time.Millisecond, b.Current())

	b.Reset()
	assert.Equal(t, time.Millisecond, b.Current())
}

func TestBackoff_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := newBackoff(time.Hour, time.Hour)
	assert.ErrorIs(t, b.Sleep(ctx), context.Canceled)
}

func TestWatchConfig_Debounces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := watchConfig(ctx, path, 50*time.Millisecond, log.NewNoopLogger())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600))
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('b' + i)}, 0o600))
	}

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no reload signal")
	}
	select {
	case <-ch:
		t.Fatal("burst signalled twice")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	for range ch {
	}
}
