package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame/frametest"
	"github.com/saturnino-fabrica-de-software/facegate/internal/repository"
	"github.com/saturnino-fabrica-de-software/facegate/internal/service"
)

// fastProfile makes a replayed session capture within a few milliseconds.
const fastProfile = `heuristic:
  sampling_period: 5ms
  countdown_seconds: 1
  countdown_period: 5ms
`

type result struct {
	stdout string
	stderr string
	err    error
}

func execute(t *testing.T, a *app, args ...string) result {
	t.Helper()
	t.Setenv("FACE_STRATEGY", "heuristic")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CAPTURE_PROFILE", "")

	if a == nil {
		a = &app{openStore: openPostgresStore}
	}
	cmd := newRootCommand(a)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))

	err := cmd.ExecuteContext(context.Background())
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func faceDir(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		writeFile(t, dir, fmt.Sprintf("frame_%03d.png", i), frametest.PNG(frametest.Face(160, 120)))
	}
	return dir
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	face := writeFile(t, dir, "face.png", frametest.PNG(frametest.Face(160, 120)))
	dark := writeFile(t, dir, "dark.png", frametest.PNG(frametest.Solid(160, 120, frametest.Black)))

	t.Run("face as json", func(t *testing.T) {
		res := execute(t, nil, "inspect", "--json", face)
		require.NoError(t, res.err)

		var report InspectReport
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
		assert.Equal(t, 160, report.Width)
		assert.Equal(t, 120, report.Height)
		assert.Equal(t, domain.StrategyHeuristic, report.Strategy)
		assert.True(t, report.Plausible)
		assert.Greater(t, report.Quality, 0)
		assert.Greater(t, report.Region[2], 0)
	})

	t.Run("dark frame has no face", func(t *testing.T) {
		res := execute(t, nil, "inspect", "--json", dark)
		require.NoError(t, res.err)

		var report InspectReport
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
		assert.False(t, report.Plausible)
		assert.Equal(t, 0, report.Quality)
		assert.Equal(t, 0, report.Brightness)
	})

	t.Run("table output", func(t *testing.T) {
		res := execute(t, nil, "inspect", face)
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "quality")
		assert.Contains(t, res.stdout, "160x120")
	})

	t.Run("missing file", func(t *testing.T) {
		res := execute(t, nil, "inspect", filepath.Join(dir, "nope.png"))
		assert.ErrorIs(t, res.err, os.ErrNotExist)
	})

	t.Run("not an image", func(t *testing.T) {
		txt := writeFile(t, dir, "notes.png", []byte("hello"))
		res := execute(t, nil, "inspect", txt)
		assert.Error(t, res.err)
	})
}

func TestReplay_CapturesAndWritesFingerprint(t *testing.T) {
	frames := faceDir(t, 3)
	work := t.TempDir()
	profile := writeFile(t, work, "profile.yaml", []byte(fastProfile))
	out := filepath.Join(work, "fp.json")

	res := execute(t, nil, "--profile", profile, "replay", "--timeout", "5s", "--out", out, frames)
	require.NoError(t, res.err, res.stderr)

	var summary ReplayResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &summary))
	assert.Equal(t, domain.StrategyHeuristic, summary.Strategy)
	assert.NotEmpty(t, summary.SessionID)
	assert.Greater(t, summary.Frames, int64(0))
	assert.GreaterOrEqual(t, summary.Quality, 10)

	fp, err := readFingerprint(out)
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyHeuristic, fp.Strategy())
}

func TestReplay_TraceWritesFeedback(t *testing.T) {
	frames := faceDir(t, 2)
	profile := writeFile(t, t.TempDir(), "profile.yaml", []byte(fastProfile))

	res := execute(t, nil, "--profile", profile, "replay", "--trace", frames)
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "face=true")
}

func TestReplay_TimesOutWithoutFace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wall.png", frametest.PNG(frametest.Solid(160, 120, frametest.Wall)))
	profile := writeFile(t, t.TempDir(), "profile.yaml", []byte(fastProfile))

	start := time.Now()
	res := execute(t, nil, "--profile", profile, "replay", "--timeout", "100ms", dir)
	assert.ErrorIs(t, res.err, domain.ErrSessionTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestReplay_EndsWhenFramesRunOut(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wall.png", frametest.PNG(frametest.Solid(160, 120, frametest.Wall)))
	profile := writeFile(t, t.TempDir(), "profile.yaml", []byte(fastProfile))

	res := execute(t, nil, "--profile", profile, "replay", "--loop=false", "--timeout", "5s", dir)
	assert.ErrorIs(t, res.err, domain.ErrFrameSourceFailure)
}

func TestReplay_EmptyDirectory(t *testing.T) {
	res := execute(t, nil, "replay", t.TempDir())
	assert.Error(t, res.err)
}

func TestMatch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", []byte(`{"strategy":"heuristic","vector":[0.1,0.2,0.3]}`))
	b := writeFile(t, dir, "b.json", []byte(`{"strategy":"heuristic","vector":[0.1,0.2,0.31]}`))
	far := writeFile(t, dir, "far.json", []byte(`{"strategy":"heuristic","vector":[0.9,0.9,0.9]}`))
	model := writeFile(t, dir, "model.json", []byte(`{"strategy":"model","vector":[0.1,0.2,0.3]}`))
	bad := writeFile(t, dir, "bad.json", []byte(`{"strategy":"heuristic","vector":[]}`))

	tests := []struct {
		name    string
		args    []string
		matched bool
		wantErr error
	}{
		{name: "close vectors match", args: []string{a, b}, matched: true},
		{name: "distant vectors do not", args: []string{a, far}, matched: false},
		{name: "explicit threshold", args: []string{"--threshold", "0.001", a, b}, matched: false},
		{name: "zero threshold rejected", args: []string{"--threshold", "0", a, b}, wantErr: domain.ErrInvalidThreshold},
		{name: "negative threshold rejected", args: []string{"--threshold=-1", a, b}, wantErr: domain.ErrInvalidThreshold},
		{name: "strategy mismatch", args: []string{a, model}, wantErr: domain.ErrStrategyMismatch},
		{name: "invalid fingerprint", args: []string{a, bad}, wantErr: domain.ErrInvalidFingerprint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, nil, append([]string{"match"}, tt.args...)...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.err, tt.wantErr)
				return
			}
			require.NoError(t, res.err)

			var out domain.VerificationResult
			require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
			assert.Equal(t, tt.matched, out.Matched)
			assert.Equal(t, domain.StrategyHeuristic, out.Strategy)
		})
	}
}

func TestMatch_ProfileThreshold(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", []byte(`{"strategy":"heuristic","vector":[0.1,0.2,0.3]}`))
	b := writeFile(t, dir, "b.json", []byte(`{"strategy":"heuristic","vector":[0.1,0.2,0.31]}`))
	profile := writeFile(t, dir, "profile.yaml", []byte("thresholds:\n  heuristic: 0.001\n"))

	res := execute(t, nil, "--profile", profile, "match", a, b)
	require.NoError(t, res.err)

	var out domain.VerificationResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.False(t, out.Matched)
	assert.InDelta(t, 0.001, out.Threshold, 1e-9)
}

func memoryApp(store *repository.MemoryEnrollmentStore) *app {
	return &app{openStore: func(context.Context, *config.Config) (service.EnrollmentRepositoryInterface, func(), error) {
		return store, func() {}, nil
	}}
}

func TestEnroll(t *testing.T) {
	dir := t.TempDir()
	photo := writeFile(t, dir, "face.png", frametest.PNG(frametest.Face(160, 120)))
	wall := writeFile(t, dir, "wall.png", frametest.PNG(frametest.Solid(160, 120, frametest.Wall)))

	t.Run("from photo", func(t *testing.T) {
		store := repository.NewMemoryEnrollmentStore()
		res := execute(t, memoryApp(store), "enroll", "emp-1", photo)
		require.NoError(t, res.err)

		var e domain.Enrollment
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &e))
		assert.Equal(t, "emp-1", e.EmployeeID)
		assert.Greater(t, e.QualityScore, 0)

		stored, err := store.Get(context.Background(), "emp-1", domain.StrategyHeuristic)
		require.NoError(t, err)
		assert.Equal(t, e.ID, stored.ID)
	})

	t.Run("duplicate needs replace", func(t *testing.T) {
		store := repository.NewMemoryEnrollmentStore()
		require.NoError(t, execute(t, memoryApp(store), "enroll", "emp-1", photo).err)

		res := execute(t, memoryApp(store), "enroll", "emp-1", photo)
		assert.ErrorIs(t, res.err, domain.ErrEnrollmentExists)

		res = execute(t, memoryApp(store), "enroll", "--replace", "emp-1", photo)
		assert.NoError(t, res.err)
	})

	t.Run("from fingerprint file", func(t *testing.T) {
		store := repository.NewMemoryEnrollmentStore()
		fp := writeFile(t, dir, "fp.json", []byte(`{"strategy":"heuristic","vector":[0.1,0.2,0.3]}`))

		res := execute(t, memoryApp(store), "enroll", "emp-2", fp)
		require.NoError(t, res.err)

		stored, err := store.Get(context.Background(), "emp-2", domain.StrategyHeuristic)
		require.NoError(t, err)
		assert.Equal(t, 3, stored.Fingerprint.Len())
	})

	t.Run("no face", func(t *testing.T) {
		res := execute(t, memoryApp(repository.NewMemoryEnrollmentStore()), "enroll", "emp-3", wall)
		assert.ErrorIs(t, res.err, domain.ErrNoFaceDetected)
	})

	t.Run("requires database", func(t *testing.T) {
		res := execute(t, nil, "enroll", "emp-4", photo)
		assert.ErrorIs(t, res.err, domain.ErrValidationFailed)
	})
}

func TestRoot_InvalidStrategy(t *testing.T) {
	res := execute(t, nil, "--strategy", "magic", "match", "a.json", "b.json")
	assert.ErrorIs(t, res.err, domain.ErrInvalidStrategy)
}

func TestRoot_Version(t *testing.T) {
	res := execute(t, nil, "--version")
	require.NoError(t, res.err)
	assert.Equal(t, Version+"\n", res.stdout)
}
