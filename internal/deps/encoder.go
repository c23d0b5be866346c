package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionProbeTimeout = 5 * time.Second

var commandContext = exec.CommandContext

// CheckEncoder resolves the encoder binary and records the first line of its
// -version output. A binary that resolves but cannot report a version is
// marked unavailable.
func CheckEncoder(ctx context.Context, binary string) Status {
	status := lookup(Requirement{
		Name:        "FFmpeg",
		Command:     binary,
		Description: "Composes slide scenes and narration into video",
	})
	if !status.Available {
		return status
	}
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	out, err := commandContext(probeCtx, status.Command, "-hide_banner", "-version").Output()
	if err != nil {
		status.Available = false
		status.Detail = fmt.Sprintf("version probe failed: %v", err)
		return status
	}
	status.Version = firstLine(out)
	return status
}

func firstLine(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}
