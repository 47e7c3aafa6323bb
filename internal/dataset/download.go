// Package dataset fetches the raw text corpus over HTTP.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ErrChecksumMismatch is returned when the downloaded bytes do not hash to
// the expected SHA-256.
var ErrChecksumMismatch = errors.New("checksum mismatch")

type DownloadOptions struct {
	URL     string
	OutPath string
	// SHA256 is the optional expected hex digest of the complete file.
	SHA256 string
	// Token is sent as a bearer token when set.
	Token  string
	Stdout io.Writer
	Fs     afero.Fs
	Client *http.Client
}

// Result describes a finished download.
type Result struct {
	Path    string
	Bytes   int64
	SHA256  string
	Resumed bool
	Skipped bool
}

// AccessDeniedError reports an HTTP 401 or 403 from the dataset host.
type AccessDeniedError struct {
	URL    string
	Status int
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied for %s (%d); provide HF_TOKEN or --token", e.URL, e.Status)
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// Download fetches opts.URL into opts.OutPath. Bytes are streamed into
// OutPath+".part"; an existing part file is continued with a Range request
// and moved into place only after the optional checksum matches. An existing
// OutPath is kept when it matches the checksum, or unconditionally when no
// checksum is configured.
func Download(ctx context.Context, opts DownloadOptions) (Result, error) {
	if opts.URL == "" {
		return Result{}, fmt.Errorf("dataset url is required")
	}
	if opts.OutPath == "" {
		return Result{}, fmt.Errorf("output path is required")
	}
	expected := strings.ToLower(strings.TrimSpace(opts.SHA256))
	if expected != "" && !isSHA256Hex(expected) {
		return Result{}, fmt.Errorf("invalid sha256 %q", opts.SHA256)
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 0}
	}

	if dir := filepath.Dir(opts.OutPath); dir != "." {
		if err := opts.Fs.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("create output dir: %w", err)
		}
	}

	if res, ok, err := existing(opts.Fs, opts.OutPath, expected); err != nil {
		return Result{}, err
	} else if ok {
		fmt.Fprintf(opts.Stdout, "skip %s (already present)\n", opts.OutPath)
		return res, nil
	}

	part := opts.OutPath + ".part"
	res, err := fetch(ctx, opts, part)
	if err != nil {
		return Result{}, err
	}

	if expected != "" && res.SHA256 != expected {
		_ = opts.Fs.Remove(part)
		return Result{}, fmt.Errorf("%w for %s: expected %s got %s", ErrChecksumMismatch, opts.OutPath, expected, res.SHA256)
	}
	if err := opts.Fs.Rename(part, opts.OutPath); err != nil {
		return Result{}, fmt.Errorf("move part file into place: %w", err)
	}
	res.Path = opts.OutPath

	if expected != "" {
		fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", opts.OutPath, res.SHA256)
	} else {
		fmt.Fprintf(opts.Stdout, "wrote %s (%d bytes, sha256=%s)\n", opts.OutPath, res.Bytes, res.SHA256)
	}
	return res, nil
}

func existing(fs afero.Fs, path, expected string) (Result, bool, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, false, nil
		}
		return Result{}, false, fmt.Errorf("stat existing file: %w", err)
	}
	if fi.IsDir() {
		return Result{}, false, fmt.Errorf("expected file at %s, found directory", path)
	}

	actual, err := fileSHA256(fs, path)
	if err != nil {
		return Result{}, false, err
	}
	if expected != "" && actual != expected {
		return Result{}, false, nil
	}
	return Result{Path: path, Bytes: fi.Size(), SHA256: actual, Skipped: true}, true, nil
}

// fetch streams the remote body into part, continuing from its current size
// when the server honours the Range header.
func fetch(ctx context.Context, opts DownloadOptions, part string) (Result, error) {
	var offset int64
	if fi, err := opts.Fs.Stat(part); err == nil && !fi.IsDir() {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	setAuth(req, opts.Token)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := opts.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	h := sha256.New()
	var fh afero.File
	resumed := false

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{}, &AccessDeniedError{URL: opts.URL, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// The part file already holds the whole body.
		sum, err := fileSHA256(opts.Fs, part)
		if err != nil {
			return Result{}, err
		}
		return Result{Bytes: offset, SHA256: sum, Resumed: true}, nil
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		if err := hashFile(opts.Fs, part, h); err != nil {
			return Result{}, err
		}
		fh, err = opts.Fs.OpenFile(part, os.O_WRONLY|os.O_APPEND, 0o644)
		resumed = true
		fmt.Fprintf(opts.Stdout, "resume %s at %d bytes\n", opts.URL, offset)
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		offset = 0
		fh, err = opts.Fs.Create(part)
		fmt.Fprintf(opts.Stdout, "download %s -> %s\n", opts.URL, opts.OutPath)
	default:
		return Result{}, fmt.Errorf("download failed for %s: %s", opts.URL, resp.Status)
	}
	if err != nil {
		return Result{}, fmt.Errorf("open part file: %w", err)
	}

	written, err := copyWithProgress(io.MultiWriter(fh, h), resp.Body, offset, resp.ContentLength, opts.Stdout)
	if closeErr := fh.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close part file: %w", closeErr)
	}
	if err != nil {
		// The part file is kept so the next attempt can resume.
		return Result{}, err
	}

	return Result{
		Bytes:   offset + written,
		SHA256:  hex.EncodeToString(h.Sum(nil)),
		Resumed: resumed,
	}, nil
}

func copyWithProgress(dst io.Writer, src io.Reader, offset, remaining int64, stdout io.Writer) (int64, error) {
	total := int64(-1)
	if remaining > 0 {
		total = offset + remaining
	}

	var written int64
	buf := make([]byte, 64*1024)
	lastPrint := time.Now()
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, fmt.Errorf("write part file: %w", writeErr)
			}
			if time.Since(lastPrint) > 700*time.Millisecond {
				done := offset + written
				if total > 0 {
					pct := float64(done) * 100 / float64(total)
					fmt.Fprintf(stdout, "  progress: %.1f%% (%d/%d bytes)\n", pct, done, total)
				} else {
					fmt.Fprintf(stdout, "  progress: %d bytes\n", done)
				}
				lastPrint = time.Now()
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("download read failed: %w", readErr)
		}
	}
}

func setAuth(req *http.Request, token string) {
	if token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

func hashFile(fs afero.Fs, path string, h hash.Hash) error {
	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("read file for checksum: %w", err)
	}
	return nil
}

func fileSHA256(fs afero.Fs, path string) (string, error) {
	h := sha256.New()
	if err := hashFile(fs, path, h); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
