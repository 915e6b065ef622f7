// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// artifactDirName is the per-process parent directory under the temp root.
const artifactDirName = "riqo-uploads"

// ErrTooLarge is returned by Stage when the content exceeds the limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// Artifacts stores upload bytes on disk between acceptance and processing.
// Every job gets its own directory, <root>/riqo-uploads/<jobID>/.
type Artifacts struct {
	root string
}

// NewArtifacts roots artifact directories under tempDir, or os.TempDir()
// when tempDir is empty.
func NewArtifacts(tempDir string) *Artifacts {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Artifacts{root: filepath.Join(tempDir, artifactDirName)}
}

// Dir returns the job's directory.
func (a *Artifacts) Dir(jobID string) string {
	return filepath.Join(a.root, filepath.Base(jobID))
}

// Path returns where the job's file named name is stored.
func (a *Artifacts) Path(jobID, name string) string {
	return filepath.Join(a.Dir(jobID), safeName(name))
}

// Stage copies at most limit bytes of r into the job directory. Content
// longer than limit fails with ErrTooLarge and leaves nothing behind.
func (a *Artifacts) Stage(jobID, name string, r io.Reader, limit int64) (string, error) {
	dir := a.Dir(jobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}

	path := a.Path(jobID, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to save uploaded file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > limit {
		err = ErrTooLarge
	}
	if err != nil {
		_ = a.Remove(jobID)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("failed to save uploaded file: %w", err)
	}
	return path, nil
}

// Open opens a staged file for reading.
func (a *Artifacts) Open(jobID, name string) (*os.File, error) {
	f, err := os.Open(a.Path(jobID, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	return f, nil
}

// Remove deletes the job directory. A missing directory is not an error.
func (a *Artifacts) Remove(jobID string) error {
	if err := os.RemoveAll(a.Dir(jobID)); err != nil {
		return fmt.Errorf("failed to remove temp directory: %w", err)
	}
	return nil
}

// Sweep removes job directories last modified before cutoff and reports how
// many were removed. Directories of jobs still in flight are normally fresh;
// stale ones are left over from a crash between staging and processing.
func (a *Artifacts) Sweep(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list artifact directories: %w", err)
	}

	var removed int
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := a.Remove(entry.Name()); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// safeName strips any directory component from a client-supplied file name.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
