package encoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/timeline"
)

var commandContext = exec.CommandContext

const (
	stderrTailBytes  = 4096
	silenceSampleHz  = 44100
	defaultFFmpegBin = "ffmpeg"
)

var qualityCRF = map[string]struct {
	x264Preset string
	crf        int
}{
	QualityDraft:    {x264Preset: "ultrafast", crf: 35},
	QualityStandard: {x264Preset: "medium", crf: 23},
	QualityHigh:     {x264Preset: "slow", crf: 18},
}

// Option configures the FFmpeg client.
type Option func(*FFmpeg)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(f *FFmpeg) {
		if binary != "" {
			f.binary = binary
		}
	}
}

// WithScratchDir sets where per-job working directories are created.
func WithScratchDir(dir string) Option {
	return func(f *FFmpeg) {
		f.scratchDir = dir
	}
}

// WithTimeout bounds a single encode.
func WithTimeout(d time.Duration) Option {
	return func(f *FFmpeg) {
		f.timeout = d
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FFmpeg) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// FFmpeg renders timelines with the ffmpeg command-line tool. Each scene is a
// solid card of the scene's duration paired with its narration track; scenes
// are joined with the concat filter.
type FFmpeg struct {
	binary     string
	scratchDir string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewFFmpeg constructs a client using defaults.
func NewFFmpeg(opts ...Option) *FFmpeg {
	f := &FFmpeg{binary: defaultFFmpegBin, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFromConfig builds the encoder configured for the daemon.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *FFmpeg {
	return NewFFmpeg(
		WithBinary(cfg.Encoder.Binary),
		WithScratchDir(cfg.Encoder.ScratchDir),
		WithTimeout(time.Duration(cfg.Encoder.TimeoutSeconds)*time.Second),
		WithLogger(logging.NewComponentLogger(logger, "encoder")),
	)
}

// Binary returns the executable the client invokes.
func (f *FFmpeg) Binary() string { return f.binary }

// Encode writes narration to a scratch directory, runs ffmpeg, and returns
// the encoded bytes. The scratch directory is removed on every path so a
// cancelled encode leaves no partial output behind.
func (f *FFmpeg) Encode(ctx context.Context, tl timeline.Timeline, audio []SceneAudio, spec OutputSpec, progress func(ProgressUpdate)) ([]byte, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(tl.Scenes) == 0 {
		return nil, services.Wrap(services.ErrFatal, "encoder", "encode", "timeline has no scenes", timeline.ErrInvalid)
	}
	width, height, err := tl.Settings.Dimensions()
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, "encoder", "encode", "timeline resolution", err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if f.scratchDir != "" {
		if err := os.MkdirAll(f.scratchDir, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
	}
	workDir, err := os.MkdirTemp(f.scratchDir, "encode-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	audioPaths, err := writeAudio(workDir, tl.Scenes, audio)
	if err != nil {
		return nil, err
	}
	outputPath := filepath.Join(workDir, "output."+spec.Format)
	args := buildArgs(tl, width, height, audioPaths, spec, outputPath)

	cmd := commandContext(ctx, f.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "encoder", "start", f.binary, err)
	}

	readErr := readProgress(stdout, tl.TotalDuration, progress)
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "encoder", "encode", "encode exceeded timeout", ctxErr)
		}
		return nil, services.Wrap(services.ErrCancelled, "encoder", "encode", "encode cancelled", ctxErr)
	}
	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		encErr := &Error{ExitCode: exitCode, Stderr: stderr.String(), Err: waitErr}
		f.logger.Warn("ffmpeg failed",
			logging.Int("exit_code", exitCode),
			logging.String(logging.FieldEventType, "encode_failed"),
			logging.String(logging.FieldErrorHint, "inspect encoder stderr"),
			logging.String("stderr_tail", lastLine(encErr.Stderr)),
		)
		return nil, encErr
	}
	if readErr != nil {
		return nil, fmt.Errorf("read ffmpeg progress: %w", readErr)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, services.Wrap(services.ErrEncoding, "encoder", "read output", "encoder produced no output", err)
	}
	if progress != nil {
		progress(ProgressUpdate{Percent: 100, EncodedSeconds: tl.TotalDuration})
	}
	return data, nil
}

func writeAudio(dir string, scenes []timeline.Scene, audio []SceneAudio) ([]string, error) {
	byScene := make(map[string]SceneAudio, len(audio))
	for _, a := range audio {
		byScene[a.SceneID] = a
	}
	paths := make([]string, len(scenes))
	for i, scene := range scenes {
		a, ok := byScene[scene.ID]
		if !ok || len(a.Data) == 0 {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(a.Format), ".")
		if ext == "" {
			ext = "wav"
		}
		path := filepath.Join(dir, fmt.Sprintf("scene-%03d.%s", i, ext))
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return nil, fmt.Errorf("write scene audio: %w", err)
		}
		paths[i] = path
	}
	return paths, nil
}

// buildArgs lays out inputs as alternating video card and audio per scene,
// then concatenates the pairs.
func buildArgs(tl timeline.Timeline, width, height int, audioPaths []string, spec OutputSpec, outputPath string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}
	var filter strings.Builder
	var concatInputs strings.Builder
	for i, scene := range tl.Scenes {
		dur := formatSeconds(scene.Duration)
		args = append(args,
			"-f", "lavfi", "-t", dur,
			"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d", width, height, tl.Settings.FrameRate),
		)
		if audioPaths[i] != "" {
			args = append(args, "-i", audioPaths[i])
		} else {
			args = append(args, "-f", "lavfi", "-t", dur, "-i", fmt.Sprintf("anullsrc=r=%d:cl=mono", silenceSampleHz))
		}
		videoIdx, audioIdx := 2*i, 2*i+1
		fmt.Fprintf(&filter, "[%d:v]setsar=1%s[v%d];", videoIdx, fadeFilter(scene), i)
		fmt.Fprintf(&filter, "[%d:a]aresample=%d,aformat=channel_layouts=mono,apad,atrim=0:%s[a%d];", audioIdx, silenceSampleHz, dur, i)
		fmt.Fprintf(&concatInputs, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&filter, "%sconcat=n=%d:v=1:a=1[outv][outa]", concatInputs.String(), len(tl.Scenes))

	args = append(args, "-filter_complex", filter.String(), "-map", "[outv]", "-map", "[outa]")
	args = append(args, codecArgs(spec)...)
	args = append(args, "-progress", "pipe:1", "-nostats", outputPath)
	return args
}

func fadeFilter(scene timeline.Scene) string {
	if scene.TransitionIn != timeline.TransitionFade || scene.TransitionSeconds <= 0 {
		return ""
	}
	d := scene.TransitionSeconds
	if d > scene.Duration/2 {
		d = scene.Duration / 2
	}
	return fmt.Sprintf(",fade=t=in:st=0:d=%s", formatSeconds(d))
}

func codecArgs(spec OutputSpec) []string {
	q := qualityCRF[spec.QualityPreset]
	switch spec.Format {
	case FormatWebM:
		return []string{"-c:v", "libvpx-vp9", "-crf", strconv.Itoa(q.crf + 8), "-b:v", "0", "-c:a", "libopus"}
	default:
		args := []string{"-c:v", "libx264", "-preset", q.x264Preset, "-crf", strconv.Itoa(q.crf), "-pix_fmt", "yuv420p", "-c:a", "aac"}
		if spec.Format == FormatMP4 {
			args = append(args, "-movflags", "+faststart")
		}
		return args
	}
}

// readProgress consumes ffmpeg's key=value progress stream. out_time_ms is
// reported in microseconds.
func readProgress(r io.Reader, total float64, progress func(ProgressUpdate)) error {
	scanner := bufio.NewScanner(r)
	var speed string
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "speed":
			speed = strings.TrimSpace(value)
		case "out_time_ms", "out_time_us":
			micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil || micros < 0 {
				continue
			}
			if progress == nil {
				continue
			}
			seconds := float64(micros) / 1e6
			progress(ProgressUpdate{Percent: percentOf(seconds, total), EncodedSeconds: seconds, Speed: speed})
		}
	}
	return scanner.Err()
}

func percentOf(seconds, total float64) float64 {
	if total <= 0 {
		return 0
	}
	pct := seconds / total * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

var _ Encoder = (*FFmpeg)(nil)
