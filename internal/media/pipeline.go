// Package media implements the image intake pipeline: uploads are staged in a
// quarantine directory, promoted to a permanent store when a post commits, and
// reclaimed when they are never used.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxBytes  = 5 * 1024 * 1024
	DefaultRetention = time.Hour
)

// StageInput is one uploaded file with its client-declared metadata.
type StageInput struct {
	// Source identifies the uploader for rate limiting, usually the remote address.
	Source       string
	Content      []byte
	DeclaredMIME string
	DeclaredSize int64
	OriginalName string
}

// Options configures a Pipeline.
type Options struct {
	QuarantineDir string
	Store         Store
	Limiter       middleware.Limiter
	MaxBytes      int64
	Retention     time.Duration
}

// Pipeline stages, promotes and reclaims uploaded images. It writes no database rows.
type Pipeline struct {
	quarantineDir string
	store         Store
	limiter       middleware.Limiter
	maxBytes      int64
	retention     time.Duration
	now           func() time.Time
}

func NewPipeline(opts Options) *Pipeline {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Pipeline{
		quarantineDir: opts.QuarantineDir,
		store:         opts.Store,
		limiter:       opts.Limiter,
		maxBytes:      opts.MaxBytes,
		retention:     opts.Retention,
		now:           time.Now,
	}
}

// QuarantinePath returns the on-disk location of a staged file.
func (p *Pipeline) QuarantinePath(filename string) string {
	return filepath.Join(p.quarantineDir, filename)
}

// PublicURL returns the URL filename will have once promoted.
func (p *Pipeline) PublicURL(filename string) string {
	return p.store.URL(filename)
}

// Stage validates an upload and writes it to quarantine under a generated name.
// Every rejection happens before anything is written.
func (p *Pipeline) Stage(ctx context.Context, in StageInput) (*models.StagedImage, error) {
	span, ctx := observability.NewSpan(ctx, "media.stage", attribute.Int("upload.size", len(in.Content)))
	defer span.End()

	img, err := p.stage(ctx, in)
	if err != nil {
		span.SetError(err)
		observability.MediaStaged.WithLabelValues(stageResult(err)).Inc()
		return nil, err
	}
	observability.MediaStaged.WithLabelValues("ok").Inc()
	return img, nil
}

func (p *Pipeline) stage(ctx context.Context, in StageInput) (*models.StagedImage, error) {
	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, in.Source)
		if err != nil {
			middleware.Logger.WarnContext(ctx, "upload rate limiter unavailable, allowing request",
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			return nil, models.NewRateLimitedError("Too many uploads, try again later")
		}
	}

	declared := normalizeContentType(in.DeclaredMIME)
	if !isAllowedImageMIME(declared) {
		return nil, models.NewValidationError("Unsupported image type")
	}
	if in.DeclaredSize > p.maxBytes || int64(len(in.Content)) > p.maxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", p.maxBytes/(1024*1024)))
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if detected := sniff(in.Content); detected != declared {
		return nil, models.NewValidationError("File content is not a valid image of the declared type")
	}

	uploadedAt := p.now()
	filename, path, err := p.writeQuarantined(in.OriginalName, uploadedAt, extensionFor(in.OriginalName, declared), in.Content)
	if err != nil {
		return nil, models.NewStorageError(err)
	}

	middleware.Logger.DebugContext(ctx, "image staged", slog.String("filename", filename))
	return &models.StagedImage{
		Filename:     filename,
		Path:         path,
		OriginalName: in.OriginalName,
		MimeType:     declared,
		Size:         int64(len(in.Content)),
		UploadedAt:   uploadedAt,
	}, nil
}

func stageResult(err error) string {
	switch {
	case models.HasCode(err, models.CodeRateLimited):
		return "rate_limited"
	case models.HasCode(err, models.CodeValidation):
		return "rejected"
	default:
		return "error"
	}
}

// stagedName derives a name that shares no characters with the client's filename.
func stagedName(seed, ext string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:16] + ext
}

// writeQuarantined writes content to a private temp file, then links it into
// place so a half-written file is never visible under a staged name and an
// existing name is never overwritten.
func (p *Pipeline) writeQuarantined(originalName string, ts time.Time, ext string, content []byte) (string, string, error) {
	if err := os.MkdirAll(p.quarantineDir, 0o750); err != nil {
		return "", "", err
	}

	tmp, err := os.CreateTemp(p.quarantineDir, ".stage-*")
	if err != nil {
		return "", "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return "", "", err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", "", err
	}
	if err := tmp.Close(); err != nil {
		return "", "", err
	}

	seed := originalName + strconv.FormatInt(ts.UnixMilli(), 10)
	for attempt := 0; attempt < 3; attempt++ {
		filename := stagedName(seed, ext)
		dst := p.QuarantinePath(filename)
		err := os.Link(tmpPath, dst)
		if err == nil {
			return filename, dst, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", err
		}
		seed += uuid.NewString()
	}
	return "", "", errors.New("could not allocate a unique staged filename")
}

// Promote moves a staged file into the permanent store and returns its URL.
func (p *Pipeline) Promote(ctx context.Context, filename string) (string, error) {
	if !ValidFilename(filename) {
		return "", models.NewValidationError("Invalid image reference")
	}
	src := p.QuarantinePath(filename)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", models.NewValidationError(fmt.Sprintf("Image %s was not uploaded or has expired", filename))
		}
		return "", models.NewStorageError(err)
	}

	if err := p.store.Put(ctx, filename, src); err != nil {
		observability.MediaPromoted.WithLabelValues("error").Inc()
		if errors.Is(err, fs.ErrExist) {
			return "", models.NewConflictError(fmt.Sprintf("Image %s is already in use", filename))
		}
		return "", models.NewStorageError(err)
	}
	observability.MediaPromoted.WithLabelValues("ok").Inc()
	return p.store.URL(filename), nil
}

// PromoteAll promotes filenames concurrently and returns their URLs in input
// order. On any failure the files already promoted are moved back.
func (p *Pipeline) PromoteAll(ctx context.Context, filenames []string) ([]string, error) {
	urls := make([]string, len(filenames))
	promoted := make([]bool, len(filenames))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range filenames {
		i, name := i, name
		g.Go(func() error {
			url, err := p.Promote(gctx, name)
			if err != nil {
				return err
			}
			urls[i] = url
			promoted[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var done []string
		for i, ok := range promoted {
			if ok {
				done = append(done, filenames[i])
			}
		}
		p.RevertAll(context.WithoutCancel(ctx), done)
		return nil, err
	}
	return urls, nil
}

// Revert moves a promoted file back to quarantine so the reclaim sweep collects it.
func (p *Pipeline) Revert(ctx context.Context, filename string) error {
	if !ValidFilename(filename) {
		return models.NewValidationError("Invalid image reference")
	}
	if err := os.MkdirAll(p.quarantineDir, 0o750); err != nil {
		return models.NewStorageError(err)
	}
	if err := p.store.Restore(ctx, filename, p.QuarantinePath(filename)); err != nil {
		return models.NewStorageError(err)
	}
	observability.MediaPromoted.WithLabelValues("reverted").Inc()
	return nil
}

// RevertAll reverts each file, logging failures.
func (p *Pipeline) RevertAll(ctx context.Context, filenames []string) {
	for _, name := range filenames {
		if err := p.Revert(ctx, name); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to revert promoted image",
				slog.String("filename", name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Reclaim deletes quarantined files last modified more than the retention period
// before now. A file that cannot be removed is logged and skipped.
func (p *Pipeline) Reclaim(ctx context.Context, now time.Time) (int, error) {
	entries, err := os.ReadDir(p.quarantineDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, models.NewStorageError(err)
	}

	cutoff := now.Add(-p.retention)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Deleted since ReadDir.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(p.QuarantinePath(entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			var pathErr *fs.PathError
			if errors.As(err, &pathErr) {
				err = pathErr.Err
			}
			observability.MediaReclaimed.WithLabelValues("failed").Inc()
			middleware.Logger.WarnContext(ctx, "failed to reclaim staged image",
				slog.String("filename", entry.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
		observability.MediaReclaimed.WithLabelValues("removed").Inc()
	}
	return removed, nil
}
