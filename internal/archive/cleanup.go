package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TmpDirName is the directory intermediate files are moved into when kept
const TmpDirName = "tmpfiles"

// Purge removes the outputs of a previous run: workbooks in outputDir and
// the tmpfiles directory in workDir.
func Purge(outputDir, workDir string) error {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read output directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".xlsx") {
			continue
		}
		if err := os.Remove(filepath.Join(outputDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove previous report: %w", err)
		}
	}

	if err := os.RemoveAll(filepath.Join(workDir, TmpDirName)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", TmpDirName, err)
	}
	return nil
}

// isJunk reports whether an extracted file is an intermediate of a run
func isJunk(name string) bool {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, ".csv"):
		return true
	case strings.Contains(lower, ".megalog"):
		return true
	case strings.HasSuffix(lower, ".zip") && !strings.Contains(lower, OuterArchiveName):
		return true
	}
	return false
}

// Intermediates returns the extracted files a run disposes of afterwards.
// The outer archive is never among them.
func (l *Layout) Intermediates() []string {
	var files []string
	for _, path := range l.Extracted {
		if samePath(path, l.Archive) || !isJunk(filepath.Base(path)) {
			continue
		}
		files = append(files, path)
	}
	return files
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

// Cleanup disposes of files a run produced. With keep set they are moved
// into workDir/tmpfiles instead of deleted. Paths that no longer exist are
// skipped. It returns the number of files handled.
func Cleanup(workDir string, files []string, keep bool) (int, error) {
	seen := make(map[string]bool)
	var junk []string
	for _, path := range files {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if seen[abs] {
			continue
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		seen[abs] = true
		junk = append(junk, path)
	}

	if keep && len(junk) > 0 {
		if err := os.MkdirAll(filepath.Join(workDir, TmpDirName), 0755); err != nil {
			return 0, fmt.Errorf("failed to create %s: %w", TmpDirName, err)
		}
	}

	for _, path := range junk {
		var err error
		if keep {
			err = os.Rename(path, filepath.Join(workDir, TmpDirName, filepath.Base(path)))
		} else {
			err = os.Remove(path)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to dispose of %s: %w", path, err)
		}
	}
	return len(junk), nil
}
