package cleanup

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"force-cleanup/internal/config"
	"force-cleanup/internal/database"
	"force-cleanup/internal/fsops"
	"force-cleanup/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
)

type fixture struct {
	cfg    *config.Config
	out    *bytes.Buffer
	logBuf *bytes.Buffer
	runner *Runner
}

// newFixture prepares target and trash paths under a temp dir.
// The target is created with one file when withTarget is set.
func newFixture(t *testing.T, withTarget bool) *fixture {
	t.Helper()

	target := filepath.Join(t.TempDir(), "sample", "dir")
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		t.Fatalf("Failed to create parent: %v", err)
	}
	if withTarget {
		mustWriteTree(t, target, map[string]string{"file.txt": "content"})
	}

	cfg := &config.Config{TargetDir: target, TrashDir: config.TrashPathFor(target)}
	f := &fixture{cfg: cfg, out: &bytes.Buffer{}, logBuf: &bytes.Buffer{}}
	f.runner = NewRunner(cfg, f.out, log.New(f.logBuf, "", 0), nil)
	return f
}

func mustWriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", p, err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", p, err)
		}
	}
}

// fakeFS wraps the real disk with injected rename and delete errors
func fakeFS(renameErr, removeAllErr error) *fsops.FakeFS {
	f := fsops.NewFakeFS(nil)
	f.RenameErr = renameErr
	f.RemoveAllErr = removeAllErr
	return f
}

func outputLines(buf *bytes.Buffer) []string {
	s := strings.TrimSuffix(buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func assertExists(t *testing.T, path string, want bool) {
	t.Helper()
	_, err := os.Stat(path)
	if want && err != nil {
		t.Errorf("Expected %s to exist: %v", path, err)
	}
	if !want && !os.IsNotExist(err) {
		t.Errorf("Expected %s to be gone, stat returned %v", path, err)
	}
}

// TestTargetNotFound verifies a missing target is reported without mutation
func TestTargetNotFound(t *testing.T) {
	f := newFixture(t, false)
	fake := fakeFS(nil, nil)
	f.runner.SetFS(fake)

	rep := f.runner.Run()

	lines := outputLines(f.out)
	if len(lines) != 1 || lines[0] != "Target directory not found" {
		t.Errorf("unexpected output %q", lines)
	}
	if len(fake.Calls) != 0 {
		t.Errorf("Expected no mutating calls, got %v", fake.Calls)
	}
	if rep.TargetFound || rep.Outcome() != OutcomeNotFound {
		t.Errorf("unexpected report %+v", rep)
	}
}

// TestRenameAndDelete verifies the full happy path on a real filesystem
func TestRenameAndDelete(t *testing.T) {
	f := newFixture(t, true)
	mustWriteTree(t, f.cfg.TargetDir, map[string]string{"nested/deeper/more.bin": "0123456789"})

	rep := f.runner.Run()

	expected := []string{
		"Renaming " + f.cfg.TargetDir + " to " + f.cfg.TrashDir,
		"Rename successful",
		"Deleting " + f.cfg.TrashDir,
		"Deletion successful",
	}
	lines := outputLines(f.out)
	if len(lines) != len(expected) {
		t.Fatalf("Expected %d lines, got %q", len(expected), lines)
	}
	for i := range expected {
		if lines[i] != expected[i] {
			t.Errorf("line %d = %q, expected %q", i, lines[i], expected[i])
		}
	}

	assertExists(t, f.cfg.TargetDir, false)
	assertExists(t, f.cfg.TrashDir, false)

	if !rep.Renamed || !rep.DeleteAttempted || !rep.Deleted {
		t.Errorf("unexpected report %+v", rep)
	}
	if rep.FilesRemoved != 2 || rep.BytesRemoved != 17 {
		t.Errorf("removed %d files / %d bytes, expected 2 / 17", rep.FilesRemoved, rep.BytesRemoved)
	}
	if rep.Outcome() != OutcomeRemoved {
		t.Errorf("Outcome = %s, expected %s", rep.Outcome(), OutcomeRemoved)
	}
}

// TestRenameFailureSkipsDelete verifies no delete happens when nothing was moved
func TestRenameFailureSkipsDelete(t *testing.T) {
	f := newFixture(t, true)
	fake := fakeFS(syscall.EXDEV, nil)
	f.runner.SetFS(fake)

	rep := f.runner.Run()

	lines := outputLines(f.out)
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %q", lines)
	}
	if !strings.HasPrefix(lines[1], "Rename failed: ") || !strings.Contains(lines[1], syscall.EXDEV.Error()) {
		t.Errorf("unexpected failure line %q", lines[1])
	}

	for _, call := range fake.Calls {
		if strings.HasPrefix(call, "rmall:") {
			t.Errorf("delete must not be attempted, got %v", fake.Calls)
		}
	}

	assertExists(t, f.cfg.TargetDir, true)
	assertExists(t, f.cfg.TrashDir, false)

	if rep.RenameErr == nil || !errors.Is(rep.RenameErr, syscall.EXDEV) {
		t.Errorf("RenameErr = %v, expected EXDEV", rep.RenameErr)
	}
	if rep.DeleteAttempted {
		t.Error("DeleteAttempted should be false")
	}
	if rep.Outcome() != OutcomeRenameFailed {
		t.Errorf("Outcome = %s, expected %s", rep.Outcome(), OutcomeRenameFailed)
	}
}

// TestRenameFailureDeletesLeftoverTrash verifies a pre-existing trash path is
// still deleted after a failed rename
func TestRenameFailureDeletesLeftoverTrash(t *testing.T) {
	f := newFixture(t, true)
	mustWriteTree(t, f.cfg.TrashDir, map[string]string{"stale.txt": "old"})
	f.runner.SetFS(fakeFS(syscall.EACCES, nil))

	rep := f.runner.Run()

	lines := outputLines(f.out)
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %q", lines)
	}
	if lines[2] != "Deleting "+f.cfg.TrashDir || lines[3] != "Deletion successful" {
		t.Errorf("unexpected delete lines %q", lines[2:])
	}

	assertExists(t, f.cfg.TargetDir, true)
	assertExists(t, f.cfg.TrashDir, false)

	if !rep.Deleted || rep.Outcome() != OutcomeRenameFailed {
		t.Errorf("unexpected report %+v", rep)
	}
}

// TestDeleteFailure verifies a failed delete is reported and the target stays gone
func TestDeleteFailure(t *testing.T) {
	f := newFixture(t, true)
	f.runner.SetFS(fakeFS(nil, syscall.EBUSY))

	rep := f.runner.Run()

	lines := outputLines(f.out)
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %q", lines)
	}
	if !strings.HasPrefix(lines[3], "Deletion failed: ") {
		t.Errorf("unexpected failure line %q", lines[3])
	}

	assertExists(t, f.cfg.TargetDir, false)
	assertExists(t, f.cfg.TrashDir, true)

	if rep.DeleteErr == nil || !errors.Is(rep.DeleteErr, syscall.EBUSY) {
		t.Errorf("DeleteErr = %v, expected EBUSY", rep.DeleteErr)
	}
	if rep.Deleted || rep.BytesRemoved != 0 {
		t.Errorf("failed delete must not count removed bytes: %+v", rep)
	}
	if rep.Outcome() != OutcomeDeleteFailed {
		t.Errorf("Outcome = %s, expected %s", rep.Outcome(), OutcomeDeleteFailed)
	}
}

// TestSecondRunIsNoop verifies running again after success changes nothing
func TestSecondRunIsNoop(t *testing.T) {
	f := newFixture(t, true)

	if rep := f.runner.Run(); rep.Outcome() != OutcomeRemoved {
		t.Fatalf("first run outcome = %s", rep.Outcome())
	}

	f.out.Reset()
	fake := fakeFS(nil, nil)
	f.runner.SetFS(fake)
	rep := f.runner.Run()

	if f.out.String() != "Target directory not found\n" {
		t.Errorf("unexpected second run output %q", f.out.String())
	}
	if len(fake.Calls) != 0 || rep.Outcome() != OutcomeNotFound {
		t.Errorf("second run mutated: calls=%v report=%+v", fake.Calls, rep)
	}
}

// TestProtectedTargetRefused verifies the validator blocks system paths
func TestProtectedTargetRefused(t *testing.T) {
	cfg := &config.Config{TargetDir: "/etc", TrashDir: "/_trash_etc"}
	out := &bytes.Buffer{}
	runner := NewRunner(cfg, out, log.New(io.Discard, "", 0), nil)
	fake := fakeFS(nil, nil)
	runner.SetFS(fake)

	rep := runner.Run()

	if !strings.HasPrefix(out.String(), "Refusing to clean up: ") {
		t.Errorf("unexpected output %q", out.String())
	}
	if len(fake.Calls) != 0 {
		t.Errorf("refused run must not touch disk, got %v", fake.Calls)
	}
	if rep.Outcome() != OutcomeRefused {
		t.Errorf("Outcome = %s, expected %s", rep.Outcome(), OutcomeRefused)
	}
}

// TestHistoryAndMetrics verifies each step lands in the database and metrics
func TestHistoryAndMetrics(t *testing.T) {
	db, err := database.NewHistoryDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	f := newFixture(t, true)
	m := metrics.New()
	f.runner = NewRunner(f.cfg, f.out, log.New(f.logBuf, "", 0), db)
	f.runner.SetMetrics(m)

	f.runner.Run()
	f.runner.Run()

	runs, err := db.GetRecentRuns(10)
	if err != nil {
		t.Fatalf("GetRecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	first := runs[1]
	if first.Outcome != OutcomeRemoved || !first.Renamed || !first.Deleted || first.FilesRemoved != 1 {
		t.Errorf("unexpected first run %+v", first)
	}
	if runs[0].Outcome != OutcomeNotFound {
		t.Errorf("second run outcome = %s", runs[0].Outcome)
	}

	events, err := db.GetRunEvents(first.ID)
	if err != nil {
		t.Fatalf("GetRunEvents failed: %v", err)
	}
	if len(events) != 2 || events[0].Action != database.ActionRename || events[1].Action != database.ActionDelete {
		t.Errorf("unexpected events %+v", events)
	}

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(OutcomeRemoved)); got != 1 {
		t.Errorf("removed runs = %v, expected 1", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(OutcomeNotFound)); got != 1 {
		t.Errorf("not_found runs = %v, expected 1", got)
	}
	if got := testutil.ToFloat64(m.BytesRemovedTotal); got != float64(len("content")) {
		t.Errorf("bytes removed = %v", got)
	}

	if !strings.Contains(f.logBuf.String(), "[INFO] Cleanup complete outcome=removed") {
		t.Errorf("log missing completion line:\n%s", f.logBuf.String())
	}
}

// TestFailuresRecorded verifies failed steps are counted and stored
func TestFailuresRecorded(t *testing.T) {
	db, err := database.NewHistoryDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	f := newFixture(t, true)
	mustWriteTree(t, f.cfg.TrashDir, map[string]string{"stale.txt": "old"})
	m := metrics.New()
	f.runner = NewRunner(f.cfg, f.out, log.New(io.Discard, "", 0), db)
	f.runner.SetFS(fakeFS(syscall.EACCES, syscall.EBUSY))
	f.runner.SetMetrics(m)

	rep := f.runner.Run()
	if rep.Outcome() != OutcomeDeleteFailed {
		t.Errorf("Outcome = %s, expected %s", rep.Outcome(), OutcomeDeleteFailed)
	}

	if got := testutil.ToFloat64(m.RenameFailuresTotal); got != 1 {
		t.Errorf("rename failures = %v, expected 1", got)
	}
	if got := testutil.ToFloat64(m.DeleteFailuresTotal); got != 1 {
		t.Errorf("delete failures = %v, expected 1", got)
	}

	events, err := db.GetEventsByAction(database.ActionDelete)
	if err != nil {
		t.Fatalf("GetEventsByAction failed: %v", err)
	}
	if len(events) != 1 || events[0].Status != database.StatusError || !strings.Contains(events[0].ErrorMessage, syscall.EBUSY.Error()) {
		t.Errorf("unexpected delete events %+v", events)
	}
}

func TestReportOutcome(t *testing.T) {
	tests := []struct {
		name     string
		report   Report
		expected string
	}{
		{"refused", Report{Refused: errors.New("protected path")}, OutcomeRefused},
		{"not found", Report{}, OutcomeNotFound},
		{"removed", Report{TargetFound: true, Renamed: true, Deleted: true}, OutcomeRemoved},
		{"rename failed", Report{TargetFound: true, RenameErr: &RenameError{Err: syscall.EACCES}}, OutcomeRenameFailed},
		{"delete failed wins", Report{
			TargetFound: true,
			RenameErr:   &RenameError{Err: syscall.EACCES},
			DeleteErr:   &DeleteError{Err: syscall.EBUSY},
		}, OutcomeDeleteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.Outcome(); got != tt.expected {
				t.Errorf("Outcome() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

// TestInMemoryTree verifies a full run against an in-memory filesystem
func TestInMemoryTree(t *testing.T) {
	mem := afero.NewMemMapFs()
	target := "/srv/games/[gameId]"
	trash := config.TrashPathFor(target)
	if err := mem.MkdirAll(target, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	out := &bytes.Buffer{}
	runner := NewRunner(&config.Config{TargetDir: target, TrashDir: trash}, out, log.New(io.Discard, "", 0), nil)
	runner.SetFS(mem)

	rep := runner.Run()
	if rep.Outcome() != OutcomeRemoved {
		t.Fatalf("Outcome = %s, expected %s", rep.Outcome(), OutcomeRemoved)
	}
	if !rep.Renamed || !rep.Deleted {
		t.Errorf("Renamed = %v, Deleted = %v, expected both", rep.Renamed, rep.Deleted)
	}
	if fsops.Exists(mem, target) || fsops.Exists(mem, trash) {
		t.Error("target or trash still present after run")
	}

	expected := []string{
		"Renaming /srv/games/[gameId] to /srv/games/_trash_gameId",
		"Rename successful",
		"Deleting /srv/games/_trash_gameId",
		"Deletion successful",
	}
	lines := outputLines(out)
	if len(lines) != len(expected) {
		t.Fatalf("Expected %d lines, got %v", len(expected), lines)
	}
	for i := range expected {
		if lines[i] != expected[i] {
			t.Errorf("Line %d = %q, expected %q", i, lines[i], expected[i])
		}
	}
}

// TestReadOnlyFilesystem verifies a read-only mount leaves the target in place
func TestReadOnlyFilesystem(t *testing.T) {
	mem := afero.NewMemMapFs()
	target := "/srv/games/[gameId]"
	if err := mem.MkdirAll(target, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	out := &bytes.Buffer{}
	runner := NewRunner(&config.Config{TargetDir: target, TrashDir: config.TrashPathFor(target)}, out, log.New(io.Discard, "", 0), nil)
	runner.SetFS(afero.NewReadOnlyFs(mem))

	rep := runner.Run()
	if rep.Outcome() != OutcomeRenameFailed {
		t.Fatalf("Outcome = %s, expected %s", rep.Outcome(), OutcomeRenameFailed)
	}
	if rep.RenameErr == nil || !errors.Is(rep.RenameErr, syscall.EPERM) {
		t.Errorf("Expected EPERM rename error, got %v", rep.RenameErr)
	}
	if rep.DeleteAttempted {
		t.Error("delete attempted without a trash path")
	}
	if !fsops.Exists(mem, target) {
		t.Error("target removed from read-only filesystem")
	}
}
