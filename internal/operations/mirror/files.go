package mirror

import (
	"archive/zip"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

// CleanInstallers removes every regular file in dir matching pattern. The
// first failed removal aborts the cleanup.
func CleanInstallers(logger *logrus.Entry, dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	removed := []string{}
	for _, match := range matches {
		info, err := os.Lstat(match)
		if err != nil {
			return removed, fmt.Errorf("failed to stat %s: %w", match, err)
		}
		if info.IsDir() {
			continue
		}
		if err := os.Remove(match); err != nil {
			logger.WithError(err).Errorf("✗ Failed to remove %s", filepath.Base(match))
			return removed, fmt.Errorf("failed to remove %s: %w", match, err)
		}
		logger.Infof("✓ Removed %s", filepath.Base(match))
		removed = append(removed, filepath.Base(match))
	}

	return removed, nil
}

// CreateArchive writes src as the single deflated entry entryName of a new
// zip at dst.
func CreateArchive(src, dst, entryName string, level int) (ArchiveStats, error) {
	in, err := os.Open(src)
	if err != nil {
		return ArchiveStats{}, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return ArchiveStats{}, fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return ArchiveStats{}, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		out.Close()
		return ArchiveStats{}, fmt.Errorf("failed to build zip header: %w", err)
	}
	header.Name = entryName
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		out.Close()
		return ArchiveStats{}, fmt.Errorf("failed to add zip entry: %w", err)
	}
	if _, err := io.Copy(entry, in); err != nil {
		out.Close()
		return ArchiveStats{}, fmt.Errorf("failed to compress %s: %w", src, err)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return ArchiveStats{}, fmt.Errorf("failed to finish zip: %w", err)
	}
	if err := out.Close(); err != nil {
		return ArchiveStats{}, fmt.Errorf("failed to close %s: %w", dst, err)
	}

	zipInfo, err := os.Stat(dst)
	if err != nil {
		return ArchiveStats{}, fmt.Errorf("failed to stat %s: %w", dst, err)
	}

	return ArchiveStats{
		OriginalSize:   info.Size(),
		CompressedSize: zipInfo.Size(),
	}, nil
}

// ListFiles returns the regular files in dir sorted by name.
func ListFiles(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	files := []FileInfo{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		files = append(files, FileInfo{Name: entry.Name(), Size: info.Size()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
