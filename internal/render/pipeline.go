package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"slidecast/internal/jobs"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/services/encoder"
	"slidecast/internal/services/storage"
	"slidecast/internal/timeline"
)

// Progress bands for the two long-running phases.
const (
	ttsBandEnd    = 10.0
	encodeBandEnd = 95.0
)

// render runs narration, encoding and upload for a started job and returns
// the artifact URL.
func (w *worker) render(ctx context.Context, logger *slog.Logger, job *jobs.Job, cancel context.CancelCauseFunc) (string, error) {
	p := w.pool

	record, err := p.deps.Timelines.Get(ctx, job.TimelineRef)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return "", services.Wrap(services.ErrFatal, "render", "load timeline", job.TimelineRef, err)
		}
		return "", services.Wrap(services.ErrTransient, "render", "load timeline", job.TimelineRef, err)
	}
	tl := record.Timeline
	if err := timeline.Validate(tl); err != nil {
		return "", err
	}
	spec := encoder.OutputSpec{Format: job.OutputFormat, QualityPreset: job.QualityPreset}
	if err := spec.Validate(); err != nil {
		return "", services.Wrap(services.ErrFatal, "render", "output spec", "", err)
	}

	if err := w.checkpoint(ctx, job.ID, "narration", cancel); err != nil {
		return "", err
	}
	audio, err := w.narrate(services.WithStage(ctx, "narration"), job.ID, tl)
	if err != nil {
		return "", err
	}

	if err := w.checkpoint(ctx, job.ID, "encoding", cancel); err != nil {
		return "", err
	}
	data, err := w.encode(services.WithStage(ctx, "encoding"), logger, job.ID, tl, audio, spec, cancel)
	if err != nil {
		return "", err
	}

	if err := w.checkpoint(ctx, job.ID, "upload", cancel); err != nil {
		return "", err
	}
	w.progress(ctx, job.ID, encodeBandEnd, "Uploading video")
	url, err := p.deps.Storage.Put(services.WithStage(ctx, "upload"), data, storage.RenderKey(job.ID, job.OutputFormat), encoder.ContentType(job.OutputFormat))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "render", "upload", "", err)
	}
	return url, nil
}

// checkpoint aborts the render when the job left processing.
func (w *worker) checkpoint(ctx context.Context, jobID, stage string, cancel context.CancelCauseFunc) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, "render", stage, "", context.Cause(ctx))
	}
	job, err := w.pool.deps.Store.Get(ctx, jobID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "render", stage, "checkpoint", err)
	}
	if job.Status != jobs.StatusProcessing {
		cancel(errJobCancelled)
		return services.Wrap(services.ErrCancelled, "render", stage, fmt.Sprintf("job is %s", job.Status), errJobCancelled)
	}
	return nil
}

func (w *worker) narrate(ctx context.Context, jobID string, tl timeline.Timeline) ([]encoder.SceneAudio, error) {
	p := w.pool
	out := make([]encoder.SceneAudio, len(tl.Scenes))
	total := len(tl.Scenes)
	var done atomic.Int32

	w.progress(ctx, jobID, 1, "Generating narration")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.settings.TTSConcurrency)
	for i, scene := range tl.Scenes {
		g.Go(func() error {
			audio, err := p.deps.TTS.Synthesize(gctx, scene.NarrationText, p.settings.VoiceID)
			if err != nil {
				return fmt.Errorf("scene %s: %w", scene.ID, err)
			}
			out[i] = encoder.SceneAudio{
				SceneID:         scene.ID,
				Data:            audio.Bytes,
				Format:          audio.Format,
				DurationSeconds: audio.DurationSeconds,
			}
			n := done.Add(1)
			w.progress(ctx, jobID, ttsBandEnd*float64(n)/float64(total), fmt.Sprintf("Narrated %d/%d scenes", n, total))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrCancelled, "render", "narration", "", context.Cause(ctx))
		}
		return nil, err
	}
	return out, nil
}

func (w *worker) encode(ctx context.Context, logger *slog.Logger, jobID string, tl timeline.Timeline, audio []encoder.SceneAudio, spec encoder.OutputSpec, cancel context.CancelCauseFunc) ([]byte, error) {
	sampler := logging.NewProgressSampler(10)
	onProgress := func(u encoder.ProgressUpdate) {
		pct := ttsBandEnd + (encodeBandEnd-ttsBandEnd)*u.Percent/100
		if sampler.ShouldLog(u.Percent, "encoding") {
			logger.Info("encoding progress",
				logging.Float64(logging.FieldProgressPercent, u.Percent),
				logging.Float64("encoded_seconds", u.EncodedSeconds),
				logging.String("speed", u.Speed),
			)
		}
		if !w.progress(ctx, jobID, pct, "Encoding video") {
			// Progress writes only miss when the value did not rise or the
			// job left processing.
			if job, err := w.pool.deps.Store.Get(ctx, jobID); err == nil && job.Status != jobs.StatusProcessing {
				cancel(errJobCancelled)
			}
		}
	}
	data, err := w.pool.deps.Encoder.Encode(ctx, tl, audio, spec, onProgress)
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrCancelled, "render", "encoding", "", context.Cause(ctx))
		}
		return nil, err
	}
	return data, nil
}

// progress reports whether the stored value moved.
func (w *worker) progress(ctx context.Context, jobID string, pct float64, message string) bool {
	moved, err := w.pool.deps.Store.UpdateProgress(ctx, jobID, pct, message)
	if err != nil {
		return true
	}
	return moved
}

func (w *worker) discardOutput(ctx context.Context, logger *slog.Logger, job *jobs.Job) {
	if err := w.pool.deps.Storage.Delete(ctx, storage.RenderKey(job.ID, job.OutputFormat)); err != nil {
		logger.Warn("failed to delete discarded output", logging.Error(err))
	}
}
