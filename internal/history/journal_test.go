package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func TestOpen_CreatesDatabase(t *testing.T) {
	_, path := openTestJournal(t)
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/history.db")
	assert.Error(t, err)
}

func TestClose_Nil(t *testing.T) {
	var j *Journal
	assert.NoError(t, j.Close())
}

func TestRecord_AssignsIncreasingSeq(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	a, err := j.Record(ctx, Attempt{RunID: "r1", Source: "/p/a.mligo", Mode: ModeArtifact, Outcome: "success"})
	require.NoError(t, err)
	b, err := j.Record(ctx, Attempt{RunID: "r2", Source: "/p/a.mligo", Mode: ModePreview, Outcome: "failure", Diagnostic: "boom"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.Seq)
	assert.Equal(t, int64(2), b.Seq)
}

func TestRecord_RejectsUnknownMode(t *testing.T) {
	j, _ := openTestJournal(t)
	_, err := j.Record(context.Background(), Attempt{RunID: "r", Source: "/p/a.mligo", Mode: "bogus", Outcome: "success"})
	assert.Error(t, err)
}

func TestRecent_NewestFirstAndFiltered(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	for _, src := range []string{"/p/a.mligo", "/p/b.mligo", "/p/a.mligo"} {
		_, err := j.Record(ctx, Attempt{RunID: "r", Source: src, Mode: ModePreview, Outcome: "success"})
		require.NoError(t, err)
	}
	_, err := j.Record(ctx, Attempt{RunID: "r", Source: "/p/a.mligo", Mode: ModeArtifact, Outcome: "failure", RolledBack: true})
	require.NoError(t, err)

	all, err := j.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, int64(4), all[0].Seq)
	assert.True(t, all[0].RolledBack)

	onlyA, err := j.Recent(ctx, "/p/a.mligo", 2)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, int64(4), onlyA[0].Seq)
	assert.Equal(t, int64(3), onlyA[1].Seq)
}

func TestOpen_ResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	j1, err := Open(path)
	require.NoError(t, err)
	_, err = j1.Record(ctx, Attempt{RunID: "r", Source: "/p/a.mligo", Mode: ModePreview, Outcome: "success"})
	require.NoError(t, err)
	require.NoError(t, j1.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	a, err := j2.Record(ctx, Attempt{RunID: "r", Source: "/p/a.mligo", Mode: ModePreview, Outcome: "success"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.Seq)
}
