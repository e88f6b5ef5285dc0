package cleanup

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/afero"

	"force-cleanup/internal/config"
	"force-cleanup/internal/database"
	"force-cleanup/internal/disk"
	"force-cleanup/internal/fsops"
	"force-cleanup/internal/metrics"
	"force-cleanup/internal/safety"
)

// Run outcomes, also stored in the history database and used as metric labels
const (
	OutcomeRemoved      = "removed"
	OutcomeNotFound     = "not_found"
	OutcomeRenameFailed = "rename_failed"
	OutcomeDeleteFailed = "delete_failed"
	OutcomeRefused      = "refused"
)

// RunLogger interface for structured logging in cleanup
type RunLogger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// runStdLogger wraps standard log.Logger to implement RunLogger interface
type runStdLogger struct {
	*log.Logger
}

func (l *runStdLogger) Info(msg string, args ...interface{}) {
	l.logWithLevel("INFO", msg, args...)
}

func (l *runStdLogger) Error(msg string, args ...interface{}) {
	l.logWithLevel("ERROR", msg, args...)
}

func (l *runStdLogger) logWithLevel(level, msg string, args ...interface{}) {
	parts := []interface{}{fmt.Sprintf("[%s]", level), msg}
	for i := 0; i+1 < len(args); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", args[i], args[i+1]))
	}
	if len(args)%2 == 1 {
		parts = append(parts, args[len(args)-1])
	}
	l.Logger.Println(parts...)
}

// Report describes what a single run did
type Report struct {
	TargetPath string
	TrashPath  string

	Refused     error // Safety violation, nothing was touched
	TargetFound bool

	Renamed   bool
	RenameErr *RenameError

	DeleteAttempted bool
	Deleted         bool
	DeleteErr       *DeleteError

	// Measured on the trash tree right before deletion
	BytesRemoved int64
	FilesRemoved int64

	StartedAt time.Time
	Duration  time.Duration
}

// Outcome summarizes the report in one word
func (r *Report) Outcome() string {
	switch {
	case r.Refused != nil:
		return OutcomeRefused
	case !r.TargetFound:
		return OutcomeNotFound
	case r.DeleteErr != nil:
		return OutcomeDeleteFailed
	case r.RenameErr != nil:
		return OutcomeRenameFailed
	default:
		return OutcomeRemoved
	}
}

// Runner removes one directory by renaming it to a sibling trash path and
// deleting the trash tree. Every failure is reported and none is returned.
type Runner struct {
	target    string
	trash     string
	out       io.Writer
	logger    RunLogger
	fs        afero.Fs
	validator *safety.Validator
	metrics   *metrics.Metrics    // Optional
	db        *database.HistoryDB // Optional run history

	runID int64 // History row of the current run, 0 when not recording
}

// NewRunner creates a Runner for the paths in cfg. Status lines go to out,
// diagnostics to logger.
func NewRunner(cfg *config.Config, out io.Writer, logger *log.Logger, db *database.HistoryDB) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Runner{
		target:    cfg.TargetDir,
		trash:     cfg.TrashDir,
		out:       out,
		logger:    &runStdLogger{Logger: logger},
		fs:        fsops.NewOSFS(),
		validator: safety.NewValidator(cfg.ProtectedPaths),
		db:        db,
	}
}

// SetFS replaces the filesystem used by the runner (tests)
func (r *Runner) SetFS(fsys afero.Fs) {
	r.fs = fsys
}

// SetValidator replaces the safety validator
func (r *Runner) SetValidator(v *safety.Validator) {
	r.validator = v
}

// SetMetrics enables metric recording
func (r *Runner) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Run performs one cleanup. Steps run strictly in order and each failure is
// reported before the next step is attempted.
func (r *Runner) Run() Report {
	rep := Report{
		TargetPath: r.target,
		TrashPath:  r.trash,
		StartedAt:  time.Now(),
	}
	r.beginHistory(rep.StartedAt)
	r.run(&rep)
	r.finish(&rep)
	return rep
}

func (r *Runner) run(rep *Report) {
	if r.validator != nil {
		if err := r.validator.ValidatePair(r.target, r.trash); err != nil {
			rep.Refused = err
			r.say("Refusing to clean up: %v", err)
			r.logger.Error("Safety validator blocked cleanup", "target", r.target, "trash", r.trash, "error", err)
			r.recordEvent(database.ActionRefused, r.target, err)
			return
		}
	}

	if !fsops.Exists(r.fs, r.target) {
		r.say("Target directory not found")
		r.logger.Info("Nothing to do", "target", r.target)
		r.recordEvent(database.ActionNotFound, r.target, nil)
		return
	}
	rep.TargetFound = true

	r.rename(rep)

	// A trash path left by an earlier run is deleted even if this rename failed
	if fsops.Exists(r.fs, r.trash) {
		r.delete(rep)
	}
}

func (r *Runner) rename(rep *Report) {
	r.say("Renaming %s to %s", r.target, r.trash)

	if err := r.fs.Rename(r.target, r.trash); err != nil {
		rep.RenameErr = &RenameError{Target: r.target, Trash: r.trash, Err: err}
		r.say("Rename failed: %v", err)
		r.logger.Error("Rename failed", "target", r.target, "trash", r.trash, "error", err)
		r.recordEvent(database.ActionRename, r.target, err)
		if r.metrics != nil {
			r.metrics.RenameFailuresTotal.Inc()
		}
		return
	}

	rep.Renamed = true
	r.say("Rename successful")
	r.logger.Info("Renamed", "target", r.target, "trash", r.trash)
	r.recordEvent(database.ActionRename, r.target, nil)
}

func (r *Runner) delete(rep *Report) {
	rep.DeleteAttempted = true

	stats, err := disk.MeasureTree(r.fs, r.trash)
	if err != nil {
		r.logger.Error("Failed to measure trash tree", "path", r.trash, "error", err)
		stats = &disk.TreeStats{}
	}

	r.say("Deleting %s", r.trash)

	if err := r.fs.RemoveAll(r.trash); err != nil {
		rep.DeleteErr = &DeleteError{Path: r.trash, Err: err}
		r.say("Deletion failed: %v", err)
		r.logger.Error("Deletion failed", "path", r.trash, "error", err)
		r.recordEvent(database.ActionDelete, r.trash, err)
		if r.metrics != nil {
			r.metrics.DeleteFailuresTotal.Inc()
		}
		return
	}

	rep.Deleted = true
	rep.BytesRemoved = stats.Bytes
	rep.FilesRemoved = stats.Files
	r.say("Deletion successful")
	r.logger.Info("Deleted", "path", r.trash, "files", stats.Files, "bytes", stats.Bytes)
	r.recordEvent(database.ActionDelete, r.trash, nil)
	if r.metrics != nil {
		r.metrics.RecordRemoved(stats.Bytes, stats.Files)
	}
}

// say writes one status line. Write errors are ignored, stdout going away
// must not change the outcome of the run.
func (r *Runner) say(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *Runner) beginHistory(startedAt time.Time) {
	r.runID = 0
	if r.db == nil {
		return
	}
	id, err := r.db.BeginRun(startedAt, r.target, r.trash)
	if err != nil {
		r.logger.Error("Failed to record run to database", "error", err)
		return
	}
	r.runID = id
}

func (r *Runner) recordEvent(action, path string, stepErr error) {
	if r.runID == 0 {
		return
	}
	status, msg := database.StatusOK, ""
	if stepErr != nil {
		status, msg = database.StatusError, stepErr.Error()
	}
	if err := r.db.RecordEvent(r.runID, action, path, status, msg); err != nil {
		r.logger.Error("Failed to record event to database", "action", action, "error", err)
	}
}

func (r *Runner) finish(rep *Report) {
	rep.Duration = time.Since(rep.StartedAt)
	outcome := rep.Outcome()

	r.logger.Info("Cleanup complete",
		"outcome", outcome,
		"files_removed", rep.FilesRemoved,
		"bytes_removed", rep.BytesRemoved,
		"duration", rep.Duration,
	)

	if r.metrics != nil {
		r.metrics.RecordRun(outcome, rep.StartedAt, rep.Duration)
	}

	if r.runID == 0 {
		return
	}
	err := r.db.FinishRun(r.runID, database.RunSummary{
		Outcome:      outcome,
		TargetFound:  rep.TargetFound,
		Renamed:      rep.Renamed,
		Deleted:      rep.Deleted,
		BytesRemoved: rep.BytesRemoved,
		FilesRemoved: rep.FilesRemoved,
		Duration:     rep.Duration,
	})
	if err != nil {
		r.logger.Error("Failed to finish run in database", "error", err)
	}
}
