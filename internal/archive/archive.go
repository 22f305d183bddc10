// Package archive unpacks controller diagnostic archives and locates the
// files an analysis run needs.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yeka/zip"

	"github.com/therealutkarshpriyadarshi/rclog/internal/artifact"
	"github.com/therealutkarshpriyadarshi/rclog/internal/logging"
)

// ErrNotFound is returned when an expected file is missing from an archive
var ErrNotFound = errors.New("file not found")

// Well-known name fragments, matched case-insensitively
const (
	OuterArchiveName   = "rclogs"
	IncrementalLogName = "MegaRAID_Incremental_Log"
	PDListName         = "pdlist"
	AllEventsName      = "AllEvents"
	FwTermLogName      = "Get_FwTermLog_Controller"
)

// Layout lists what an extraction produced
type Layout struct {
	WorkDir        string
	Archive        string // outer archive, after any rename
	Inner          string // inner archive, empty when there was none
	IncrementalLog string
	PDList         string // empty when the archive has no pdlist
	AllEvents      string // empty when the archive has no AllEvents file
	Extracted      []string
}

// Extractor unpacks archives into a work directory
type Extractor struct {
	workDir  string
	password string
	logger   *logging.Logger
}

// NewExtractor creates an extractor writing into workDir
func NewExtractor(workDir, password string, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Extractor{
		workDir:  workDir,
		password: password,
		logger:   logger.WithComponent("archive"),
	}
}

// Extract unpacks the outer archive and the zip nested inside it, removes
// firmware term logs, and locates the incremental log.
func (e *Extractor) Extract(archivePath string) (*Layout, error) {
	if err := os.MkdirAll(e.workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	outer, err := ensureZipExtension(archivePath)
	if err != nil {
		return nil, err
	}
	if outer != archivePath {
		e.logger.Info().Str("from", archivePath).Str("to", outer).Msg("Renamed archive")
	}

	layout := &Layout{WorkDir: e.workDir, Archive: outer}

	e.logger.Info().Str("archive", outer).Msg("Extracting archive")
	files, err := e.unzip(outer)
	if err != nil {
		return nil, err
	}
	layout.Extracted = append(layout.Extracted, files...)

	for _, f := range files {
		lower := strings.ToLower(filepath.Base(f))
		if strings.HasSuffix(lower, ".zip") && !strings.Contains(lower, OuterArchiveName) {
			layout.Inner = f
			break
		}
	}

	if layout.Inner != "" {
		e.logger.Info().Str("archive", layout.Inner).Msg("Extracting inner archive")
		inner, err := e.unzip(layout.Inner)
		if err != nil {
			return nil, err
		}
		layout.Extracted = append(layout.Extracted, inner...)
	}

	removed, err := e.removeFwTermLogs(layout)
	if err != nil {
		return nil, err
	}
	if removed > 0 {
		e.logger.Debug().Int("files", removed).Msg("Removed firmware term logs")
	}

	if layout.IncrementalLog, err = Find(e.workDir, IncrementalLogName); err != nil {
		return nil, err
	}
	layout.PDList, _ = Find(e.workDir, PDListName)
	layout.AllEvents, _ = Find(e.workDir, AllEventsName)

	return layout, nil
}

// removeFwTermLogs deletes the extracted firmware term logs and drops them
// from the layout
func (e *Extractor) removeFwTermLogs(layout *Layout) (int, error) {
	fragment := strings.ToLower(FwTermLogName)
	kept := layout.Extracted[:0]
	removed := 0
	for _, path := range layout.Extracted {
		if !strings.Contains(strings.ToLower(filepath.Base(path)), fragment) {
			kept = append(kept, path)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed++
	}
	layout.Extracted = kept
	return removed, nil
}

// ensureZipExtension renames an archive delivered as .log (or any other
// extension) so that it ends in .zip.
func ensureZipExtension(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return path, nil
	}
	renamed := strings.TrimSuffix(path, filepath.Ext(path)) + ".zip"
	if err := os.Rename(path, renamed); err != nil {
		return "", fmt.Errorf("failed to rename archive: %w", err)
	}
	return renamed, nil
}

// unzip extracts every entry of the archive into the work directory and
// returns the paths of the files written.
func (e *Extractor) unzip(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer r.Close()

	root, err := filepath.Abs(e.workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work directory: %w", err)
	}

	var written []string
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return nil, fmt.Errorf("archive entry %q escapes the work directory", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", target, err)
			}
			continue
		}

		if f.IsEncrypted() {
			if e.password == "" {
				return nil, fmt.Errorf("archive entry %q is encrypted and no password was given", f.Name)
			}
			f.SetPassword(e.password)
		}

		if err := writeEntry(f, target); err != nil {
			return nil, err
		}
		written = append(written, target)
	}

	e.logger.Debug().Str("archive", path).Int("files", len(written)).Msg("Archive extracted")
	return written, nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return dst.Close()
}

// Find returns the first regular file under dir whose name contains
// fragment, case-insensitively. The tmpfiles directory and reassembled logs
// from earlier runs are skipped.
func Find(dir, fragment string) (string, error) {
	matches, err := findAll(dir, fragment)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%s in %s: %w", fragment, dir, ErrNotFound)
	}
	return matches[0], nil
}

func findAll(dir, fragment string) ([]string, error) {
	fragment = strings.ToLower(fragment)

	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == TmpDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), artifact.LogPrefix) {
			return nil
		}
		if strings.Contains(strings.ToLower(d.Name()), fragment) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	sort.Strings(matches)
	return matches, nil
}
