package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"slidecast/internal/config"
	"slidecast/internal/deps"
	"slidecast/internal/renderqueue"
	"slidecast/internal/services/storage"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckEncoder verifies the configured encoder binary runs.
func CheckEncoder(ctx context.Context, cfg *config.Config) Result {
	status := deps.CheckEncoder(ctx, cfg.Encoder.Binary)
	if !status.Available {
		return Result{Name: status.Name, Detail: status.Detail}
	}
	detail := status.Command
	if status.Version != "" {
		detail = fmt.Sprintf("%s (%s)", status.Command, status.Version)
	}
	return Result{Name: status.Name, Passed: true, Detail: detail}
}

// CheckQueue opens the configured broker and reads its depth.
func CheckQueue(ctx context.Context, cfg *config.Config) Result {
	name := "Render queue (" + cfg.Queue.Backend + ")"
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	broker, err := renderqueue.Open(checkCtx, cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer broker.Close()
	stats, err := broker.Stats(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d ready, %d leased)", stats.Ready, stats.Leased)}
}

// CheckStorage verifies the GCS bucket is readable with the configured
// credentials.
func CheckStorage(ctx context.Context, cfg *config.Config) Result {
	const name = "Artifact storage (gcs)"
	gcs, err := storage.NewGCS(ctx, storage.GCSOptions{
		Bucket:          cfg.Storage.GCSBucket,
		Prefix:          cfg.Storage.GCSPrefix,
		CredentialsFile: cfg.Storage.GCSCredentialsFile,
	})
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer gcs.Close()
	if err := gcs.Check(ctx); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "bucket " + cfg.Storage.GCSBucket + " reachable"}
}

// CheckSpeechEndpoint verifies the speech endpoint answers and accepts the
// key. Any response below 500 other than 401/403 counts as reachable.
func CheckSpeechEndpoint(ctx context.Context, endpoint, apiKey string) Result {
	const name = "Speech endpoint"

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodOptions, endpoint, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case resp.StatusCode >= http.StatusInternalServerError:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (endpoint unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (endpoint unreachable)"
	}
	return err.Error()
}
