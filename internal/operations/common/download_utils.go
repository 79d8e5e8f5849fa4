package common

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrChecksumMismatch is returned when a file's digest differs from the
// expected value.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// CopyWithContext copies data from src to dst with context cancellation support
func CopyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return CopyWithProgress(ctx, dst, src, nil)
}

// CopyWithProgress is CopyWithContext that reports the running byte count
// after every write. onProgress may be nil.
func CopyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, onProgress func(written int64)) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
				if onProgress != nil {
					onProgress(written)
				}
			}
			if writeErr != nil {
				return written, writeErr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}

// SHA512File returns the raw SHA-512 digest of a file.
func SHA512File(filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer file.Close()

	hasher := sha512.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return hasher.Sum(nil), nil
}

// VerifyChecksum verifies the SHA-512 checksum of a file. The expected value
// may be base64 (as electron-builder writes it) or hex encoded.
func VerifyChecksum(logger *logrus.Entry, filePath, expected string) error {
	logger.WithField("expected", expected).Debug("Verifying checksum")

	sum, err := SHA512File(filePath)
	if err != nil {
		return err
	}

	actualB64 := base64.StdEncoding.EncodeToString(sum)
	actualHex := hex.EncodeToString(sum)
	expected = strings.TrimSpace(expected)

	if expected != actualB64 && !strings.EqualFold(expected, actualHex) {
		logger.WithFields(logrus.Fields{
			"expected": expected,
			"actual":   actualB64,
		}).Error("Checksum mismatch")
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, actualB64)
	}

	logger.Debug("Checksum verification successful")
	return nil
}

// CopyFile copies src to dst byte for byte and then carries over the file
// mode and modification time. A failure to apply either is an error.
func CopyFile(logger *logrus.Entry, src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return fmt.Errorf("failed to copy file: %w", err)
	}

	if err := dstFile.Sync(); err != nil {
		dstFile.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("failed to close destination file: %w", err)
	}

	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to copy file mode: %w", err)
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to copy file times: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"src":   src,
		"dst":   dst,
		"bytes": info.Size(),
	}).Debug("File copied")

	return nil
}
