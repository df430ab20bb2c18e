package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/obafela/doc-pipeline/constants"
	"github.com/obafela/doc-pipeline/internal/repository"
)

// Result describes one ingested file.
type Result struct {
	DocumentID   uuid.UUID
	SourcePath   string
	Format       constants.Format
	SizeBytes    int64
	HashHex      string
	Deduplicated bool
	Err          string
}

// DirStats aggregates a directory walk.
type DirStats struct {
	Scanned      int
	Matched      int
	Succeeded    int
	Failed       int
	Deduplicated int
}

// FSIngestor registers local files as documents, deduplicating by
// content hash.
type FSIngestor struct {
	docs   repository.DocumentRepository
	logger *slog.Logger
}

func NewFSIngestor(docs repository.DocumentRepository, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{docs: docs, logger: logger}
}

// IngestPath registers a single file. A file whose content hash already
// maps to a document is returned as a dedup hit without a new row.
func (i *FSIngestor) IngestPath(ctx context.Context, path string) (Result, error) {
	var out Result

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, err
	}

	format := constants.MapExtToFormat(filepath.Ext(abs))
	if format == "" {
		return out, errors.New("unsupported or missing extension")
	}

	f, err := os.Open(abs)
	if err != nil {
		return out, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return out, err
	}
	sum := hex.EncodeToString(h.Sum(nil))

	if existing, err := i.docs.FindDocumentByHash(ctx, sum); err == nil && existing != nil {
		i.logger.Info("document already ingested", "path", abs, "document_id", existing.ID)
		return Result{
			DocumentID:   existing.ID,
			SourcePath:   existing.FilePath,
			Format:       constants.Format(existing.Format),
			SizeBytes:    existing.SizeBytes,
			HashHex:      sum,
			Deduplicated: true,
		}, nil
	}

	doc := &repository.Document{
		ID:          uuid.New(),
		Filename:    filepath.Base(abs),
		FilePath:    abs,
		Format:      string(format),
		SizeBytes:   size,
		ContentHash: sum,
		Status:      "pending",
		CreatedAt:   time.Now().UTC(),
	}
	if err := i.docs.CreateDocument(ctx, doc); err != nil {
		return out, err
	}

	i.logger.Info("document ingested", "path", abs, "document_id", doc.ID, "format", format)
	return Result{
		DocumentID: doc.ID,
		SourcePath: abs,
		Format:     format,
		SizeBytes:  size,
		HashHex:    sum,
	}, nil
}

// IngestDirectory walks root and ingests every file with a supported
// extension, skipping hidden entries. Per-file failures are recorded in
// the results rather than aborting the walk.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []Result
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if constants.MapExtToFormat(filepath.Ext(path)) == "" {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			results = append(results, Result{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, err
	}
	return results, stats, nil
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return base != "." && strings.HasPrefix(base, ".")
}
