package natmod

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
)

// DownloadError reports a non-success HTTP status.
type DownloadError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed with status: %s", e.URL, e.Status)
}

func newHttpClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	// GitHub release assets redirect to a CDN that is occasionally slow to
	// complete the handshake.
	transport.TLSHandshakeTimeout = 30 * time.Second

	// No overall Timeout: large archives are bounded by the caller's context.
	return &http.Client{Transport: transport}
}

type downloadOptions struct {
	Quiet bool // Quiet suppresses the progress bar
}

// downloadFile streams url into destFile. A partially written file is removed
// on any failure.
func downloadFile(ctx context.Context, client *http.Client, url, destFile string, opt downloadOptions) (err error) {
	if err := os.MkdirAll(filepath.Dir(destFile), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", destFile, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid download url %s: %w", url, err)
	}

	debugf("Downloading %s -> %s", url, destFile)
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return contextError("download", ctx.Err())
		}
		return fmt.Errorf("http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DownloadError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	out, err := os.Create(destFile)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destFile, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", destFile, cerr)
		}
		if err != nil {
			_ = os.Remove(destFile)
		}
	}()

	var w io.Writer = out
	if !opt.Quiet {
		bar := newDownloadBar(resp.ContentLength, filepath.Base(destFile))
		defer bar.Close()
		w = io.MultiWriter(out, bar)
	}

	if _, err = io.Copy(w, resp.Body); err != nil {
		if ctx.Err() != nil {
			return contextError("download", ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("download: %w", ErrTimeout)
		}
		return fmt.Errorf("failed to write to destination file: %w", err)
	}

	debugf("Download of %s complete", url)
	return nil
}

func newDownloadBar(size int64, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Downloading "+name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}
