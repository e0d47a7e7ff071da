// Package backup archives the uploads root and optionally ships the
// archive to S3.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/logging"
	"github.com/Shubham6444/host/internal/metrics"
	"github.com/Shubham6444/host/internal/procexec"
)

// Uploader stores a finished archive somewhere off the host.
type Uploader interface {
	Upload(ctx context.Context, key, path string) (location string, err error)
}

// Result describes one finished backup.
type Result struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service creates backups of sourceDir into backupDir.
type Service struct {
	runner    procexec.Runner
	sourceDir string
	backupDir string
	uploader  Uploader
	timeout   time.Duration
	now       func() time.Time
}

// NewService creates a backup service. uploader may be nil, in which case
// archives stay in backupDir.
func NewService(runner procexec.Runner, sourceDir, backupDir string, uploader Uploader) *Service {
	return &Service{
		runner:    runner,
		sourceDir: sourceDir,
		backupDir: backupDir,
		uploader:  uploader,
		timeout:   30 * time.Minute,
		now:       time.Now,
	}
}

// Run writes a gzipped tarball of the source directory. A failed tar run
// leaves no archive behind.
func (s *Service) Run(ctx context.Context) (res *Result, err error) {
	defer func() { metrics.RecordBackup(err == nil) }()

	if err := os.MkdirAll(s.backupDir, 0750); err != nil {
		return nil, apperrors.FromOS("backup", s.backupDir, err)
	}

	created := s.now().UTC()
	name := "uploads-" + created.Format("20060102-150405") + ".tar.gz"
	archive := filepath.Join(s.backupDir, name)

	out, err := s.runner.Run(ctx, procexec.Command{
		Argv: []string{"tar", "-czf", archive,
			"-C", filepath.Dir(s.sourceDir), filepath.Base(s.sourceDir)},
		Timeout:   s.timeout,
		MaxOutput: 64 * 1024,
	})
	if err != nil {
		os.Remove(archive)
		return nil, apperrors.Wrap(apperrors.KindInternal, "backup could not be started", err)
	}
	if !out.Success() {
		os.Remove(archive)
		logging.Error("backup failed",
			zap.Int("exit_code", out.ExitCode),
			zap.Bool("timed_out", out.TimedOut),
			zap.String("output", out.Combined()))
		return nil, apperrors.New(apperrors.KindInternal, "backup failed: "+out.Combined())
	}

	fi, err := os.Stat(archive)
	if err != nil {
		return nil, apperrors.FromOS("backup", archive, err)
	}

	res = &Result{Name: name, Size: fi.Size(), Location: archive, CreatedAt: created}
	if s.uploader != nil {
		loc, err := s.uploader.Upload(ctx, name, archive)
		if err != nil {
			return nil, fmt.Errorf("upload backup: %w", err)
		}
		res.Location = loc
	}

	logging.Info("backup created",
		zap.String("name", name),
		zap.Int64("size", res.Size),
		zap.String("location", res.Location),
		zap.Duration("duration", out.Duration))
	return res, nil
}
