package operations

import (
	"context"
	"path/filepath"
	"time"

	"github.com/kebairia/cloudbak/internal/download"
	"github.com/kebairia/cloudbak/internal/export"
	"github.com/kebairia/cloudbak/internal/logger"
)

// Run modes recorded in the metadata.
const (
	ModeBackup       = "backup"
	ModeDownloadOnly = "download-only"
)

type resolveFunc func(*export.Engine) (export.ArtifactRef, error)

// Backup starts a new export of service, follows it to completion and downloads the archive.
// The returned error is nil for StatusSuccess and StatusPartial.
func (om *OperationManager) Backup(ctx context.Context, service export.Service) (*Metadata, error) {
	return om.run(ctx, service, ModeBackup, func(e *export.Engine) (export.ArtifactRef, error) {
		return e.Run(ctx, export.NewJob(service, om.cfg.Site, om.cfg.Backup.Attachments))
	})
}

// DownloadLast downloads the last recorded archive of service without starting an export.
func (om *OperationManager) DownloadLast(ctx context.Context, service export.Service) (*Metadata, error) {
	return om.run(ctx, service, ModeDownloadOnly, func(e *export.Engine) (export.ArtifactRef, error) {
		return e.LastKnown()
	})
}

func (om *OperationManager) run(
	ctx context.Context,
	service export.Service,
	mode string,
	resolve resolveFunc,
) (*Metadata, error) {
	log := om.log.With("service", string(service))

	lock, err := acquireLock(om.cfg.Backup.StateDir, service)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("could not release run lock", "error", err)
		}
	}()

	start := om.clock.Now()
	record := &Metadata{
		Service:   string(service),
		Site:      om.cfg.Site,
		Mode:      mode,
		StartedAt: start,
	}
	defer om.finish(record, log)

	engine, err := om.engine(service, start.Format(download.TimestampFormat))
	if err != nil {
		record.fail(err)
		return record, err
	}
	ref, err := resolve(engine)
	if err != nil {
		record.fail(err)
		return record, err
	}
	record.URL = ref.URL
	record.FromRecord = ref.FromRecord

	dctx := ctx
	if om.cfg.Download.Timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, om.cfg.Download.Timeout)
		defer cancel()
	}
	res, err := om.downloader().Fetch(dctx, ref.URL, om.cfg.Backup.Folder, string(service))
	record.ExpectedBytes = res.Expected
	record.SizeBytes = res.Actual
	if err != nil {
		record.fail(err)
		return record, err
	}
	record.FilePath = res.Path

	if om.cfg.Backup.VerifyArchive {
		entries, err := VerifyArchive(res.Path)
		if err != nil {
			log.Error("archive verification failed, file kept for inspection", "path", res.Path, "error", err)
			record.fail(err)
			return record, err
		}
		record.Entries = entries
		log.Info("archive verified", "entries", entries)
	}
	record.Status = StatusSuccess

	if om.cfg.Backup.Bucket != "" {
		record.Upload = om.upload(ctx, res.Path, log)
		if record.Upload.Error != "" {
			record.Status = StatusPartial
		}
	}
	return record, nil
}

// upload sends the archive to the configured bucket. A failure is recorded, the local file stays.
func (om *OperationManager) upload(ctx context.Context, path string, log logger.Logger) *UploadRecord {
	object := filepath.Base(path)
	rec := &UploadRecord{Bucket: om.cfg.Backup.Bucket, Object: object}

	res, err := om.sink.Upload(ctx, path, om.cfg.Backup.Bucket, object)
	if err != nil {
		log.Error("upload failed", "bucket", om.cfg.Backup.Bucket, "error", err)
		rec.Error = err.Error()
		return rec
	}
	rec.Bucket = res.Bucket
	rec.Bytes = res.Bytes
	return rec
}

// finish stamps the timings and writes the metadata next to the artifact.
func (om *OperationManager) finish(record *Metadata, log logger.Logger) {
	record.CompletedAt = om.clock.Now()
	record.DurationMS = record.CompletedAt.Sub(record.StartedAt).Milliseconds()

	artifact := record.FilePath
	if artifact == "" {
		artifact = filepath.Join(om.cfg.Backup.Folder, download.FileName(record.Service, record.StartedAt))
	}
	if err := record.Write(MetadataPath(artifact)); err != nil {
		log.Error("could not write run metadata", "error", err)
	}

	duration := (time.Duration(record.DurationMS) * time.Millisecond).String()
	switch record.Status {
	case StatusSuccess:
		log.Info("backup run finished", "status", record.Status, "path", record.FilePath, "duration", duration)
	case StatusPartial:
		log.Warn("backup run finished, upload failed", "status", record.Status, "path", record.FilePath, "duration", duration)
	default:
		log.Error("backup run failed", "error", record.Error, "duration", duration)
	}
}
