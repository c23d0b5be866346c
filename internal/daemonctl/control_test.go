package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"slidecast/internal/api"
	"slidecast/internal/testsupport"
)

func closedAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()
	return addr
}

func statusServer(t *testing.T, status api.StatusResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProcessInfo(t *testing.T) {
	ctx := context.Background()
	srv := statusServer(t, api.StatusResponse{Running: true, PID: 4242})
	running, pid, err := ProcessInfo(ctx, api.NewClient(srv.URL, nil))
	if err != nil || !running || pid != 4242 {
		t.Fatalf("unexpected process info running=%v pid=%d err=%v", running, pid, err)
	}

	running, pid, err = ProcessInfo(ctx, api.NewClient(closedAddress(t), nil))
	if err != nil || running || pid != 0 {
		t.Fatalf("expected unreachable daemon to report not running, got running=%v pid=%d err=%v", running, pid, err)
	}
}

func TestStopAndTerminateNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := StopAndTerminate(context.Background(), api.NewClient(closedAddress(t), nil), cfg, time.Second)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestWaitForRunningTimesOut(t *testing.T) {
	srv := statusServer(t, api.StatusResponse{Running: false})
	if _, err := WaitForRunning(context.Background(), api.NewClient(srv.URL, nil), 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout while daemon reports not running")
	}
}

func TestForceKillProcessGuards(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "slidecastd.pid")
	if _, err := ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected error without any pid")
	}
	if err := os.WriteFile(pidPath, []byte("garbage\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected error for malformed pid file")
	}
	if _, err := ForceKillProcess(filepath.Join(dir, "missing.pid"), "", os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	status, err := BuildStatusSnapshot(context.Background(), api.NewClient(closedAddress(t), nil), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if status.Running {
		t.Fatal("offline snapshot must not report running")
	}
	if status.Queue.Backend != "sqlite" || len(status.Errors) != 0 {
		t.Fatalf("unexpected offline snapshot %+v", status)
	}
	if len(status.Dependencies) != 1 || len(status.Preflight) == 0 {
		t.Fatalf("expected dependency and preflight results, got %+v", status)
	}
}

func TestBuildStatusSnapshotOnline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := statusServer(t, api.StatusResponse{Running: true, PID: 7})
	status, err := BuildStatusSnapshot(context.Background(), api.NewClient(srv.URL, nil), cfg)
	if err != nil || !status.Running || status.PID != 7 {
		t.Fatalf("unexpected snapshot %+v err=%v", status, err)
	}
}
