package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lintgate/internal/lint"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(id string, started time.Time) *lint.Report {
	return &lint.Report{
		RunID:      id,
		Suite:      lint.DefaultSuiteName,
		Root:       "/src/qemu/python",
		Python:     "python3",
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
		Results: []*lint.Result{
			{
				Name: "flake8_pkg", Tool: lint.ToolFlake8,
				Argv: []string{"python3", "-m", "flake8", "qemu/"}, Dir: "/src/qemu/python",
				ExitCode: 0, StartedAt: started, Duration: 3 * time.Second, Passed: true,
			},
			{
				Name: "pylint_pkg", Tool: lint.ToolPylint,
				Argv: []string{"python3", "-m", "pylint", "qemu/"}, Dir: "/src/qemu/python",
				Env:      []string{"SETUPTOOLS_USE_DISTUTILS=stdlib"},
				ExitCode: 16, StartedAt: started.Add(3 * time.Second), Duration: 30 * time.Second,
				Output: "qemu/machine.py:1:0: C0114: Missing module docstring\n", Error: "exit status 16",
				Truncated: true, CPUTime: 28 * time.Second, MaxRSSBytes: 512 << 20,
			},
			{
				Name: "mypy_pkg", Tool: lint.ToolMypy,
				Argv: []string{"python3", "-m", "mypy", "-p", "qemu"}, Dir: "/src/qemu/python",
				ExitCode: -1, Skipped: true, Error: "skipped after earlier failure",
			},
		},
	}
}

func TestStore_RecordAndRead(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)
	report := sampleReport("run-a", started)

	require.NoError(t, s.RecordReport(ctx, report))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-a", runs[0].ID)
	assert.Equal(t, 42*time.Second, runs[0].Duration)
	assert.True(t, runs[0].StartedAt.Equal(started))
	assert.Equal(t, [3]int{1, 1, 1}, [3]int{runs[0].Passed, runs[0].Failed, runs[0].Skipped})
	assert.False(t, runs[0].OK())

	results, err := s.Results(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, results, len(report.Results))

	opts := cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
	for i := range results {
		if diff := cmp.Diff(report.Results[i], results[i], opts); diff != "" {
			t.Errorf("result %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestStore_RecordReportRejectsMissingID(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.RecordReport(context.Background(), &lint.Report{}))
	assert.Error(t, s.RecordReport(context.Background(), nil))
}

func TestStore_RecordReportDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	report := sampleReport("run-dup", time.Now())

	require.NoError(t, s.RecordReport(ctx, report))
	assert.Error(t, s.RecordReport(ctx, report))

	results, err := s.Results(ctx, "run-dup")
	require.NoError(t, err)
	assert.Len(t, results, len(report.Results), "failed insert is rolled back")
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.RecordReport(ctx, sampleReport(id, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)

	runs, err = s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestStore_FindRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordReport(ctx, sampleReport("abc-111", time.Now())))
	require.NoError(t, s.RecordReport(ctx, sampleReport("abd-222", time.Now())))

	run, err := s.FindRun(ctx, "abc-111")
	require.NoError(t, err)
	assert.Equal(t, "abc-111", run.ID)

	run, err = s.FindRun(ctx, "abd")
	require.NoError(t, err)
	assert.Equal(t, "abd-222", run.ID)

	_, err = s.FindRun(ctx, "ab")
	assert.ErrorIs(t, err, ErrAmbiguousRun)

	_, err = s.FindRun(ctx, "zzz")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.FindRun(ctx, "")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_Report(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, s.RecordReport(ctx, sampleReport("run-report", started)))

	report, err := s.Report(ctx, "run-rep")
	require.NoError(t, err)
	assert.Equal(t, "run-report", report.RunID)
	assert.Equal(t, 42*time.Second, report.Duration())
	assert.False(t, report.Passed())
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "pylint_pkg", report.Failed()[0].Name)
}

func TestStore_Prune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.RecordReport(ctx, sampleReport(id, base.Add(time.Duration(i)*time.Minute))))
	}

	n, err := s.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)

	results, err := s.Results(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordReport(ctx, sampleReport("persisted", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())

	runs, err := s.ListRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "persisted", runs[0].ID)
}
