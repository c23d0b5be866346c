package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"slidecast/internal/api"
	"slidecast/internal/controller"
	"slidecast/internal/ingest"
	"slidecast/internal/logging"
	"slidecast/internal/timeline"
)

type ingestFlags struct {
	owner              string
	duration           float64
	transition         string
	transitionDuration float64
	useNotesTiming     bool
	skipHidden         bool
	output             string
	remote             bool
	quiet              bool
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Extract a deck and print its timeline",
		Long: "Ingest reads a .pptx deck, extracts slide text, notes, images, and " +
			"transition hints, and prints the synthesized timeline. With --remote the " +
			"deck is uploaded to the daemon and stored for rendering.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read deck: %w", err)
			}
			if flags.remote {
				return ingestRemote(cmd, ctx, filepath.Base(path), data, flags)
			}
			return ingestLocal(cmd, ctx, filepath.Base(path), data, flags)
		},
	}
	cmd.Flags().StringVar(&flags.owner, "owner", "", "Owner recorded with the stored timeline (--remote)")
	cmd.Flags().Float64Var(&flags.duration, "duration", 0, "Seconds per slide when the deck gives no timing")
	cmd.Flags().StringVar(&flags.transition, "transition", "", "Transition at every slide boundary, or auto for fades at the ends and slides between")
	cmd.Flags().Float64Var(&flags.transitionDuration, "transition-duration", 0, "Transition length in seconds")
	cmd.Flags().BoolVar(&flags.useNotesTiming, "notes-timing", false, "Derive slide durations from speaker notes")
	cmd.Flags().BoolVar(&flags.skipHidden, "skip-hidden", false, "Drop hidden slides")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "yaml", "Output format: yaml, json, or summary")
	cmd.Flags().BoolVar(&flags.remote, "remote", false, "Upload to the daemon instead of processing locally")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}

func ingestLocal(cmd *cobra.Command, ctx *commandContext, name string, data []byte, flags ingestFlags) error {
	cfg := ctx.configValue()
	opts := ingest.OptionsFromConfig(cfg)
	if flags.duration > 0 {
		opts.DefaultDurationSeconds = flags.duration
	}
	if flags.transition != "" {
		opts.Transition.Type = strings.ToLower(flags.transition)
	}
	if flags.transitionDuration > 0 {
		opts.Transition.DurationSeconds = flags.transitionDuration
	}
	opts.UseNotesTiming = opts.UseNotesTiming || flags.useNotesTiming
	opts.SkipHidden = flags.skipHidden
	opts.Thumbnails = false
	if err := opts.Validate(); err != nil {
		return err
	}

	processor, err := ingest.NewProcessorFromConfig(cfg, logging.NewNop())
	if err != nil {
		return err
	}
	var progress ingest.ProgressFunc
	if !flags.quiet {
		progress = progressPrinter(cmd.ErrOrStderr())
	}
	doc, stats, err := processor.Process(cmd.Context(), name, data, opts, progress)
	if err != nil {
		return describeIngestError(err)
	}
	tl := timeline.Synthesize(doc, timeline.SettingsFromConfig(cfg))

	out := cmd.OutOrStdout()
	switch strings.ToLower(flags.output) {
	case "json":
		return timeline.EncodeJSON(out, tl)
	case "yaml", "":
		return timeline.EncodeYAML(out, tl)
	case "summary":
		printIngestSummary(out, doc, stats)
		return nil
	default:
		return fmt.Errorf("unsupported output %q (want yaml, json, or summary)", flags.output)
	}
}

func ingestRemote(cmd *cobra.Command, ctx *commandContext, name string, data []byte, flags ingestFlags) error {
	if strings.TrimSpace(flags.owner) == "" {
		return fmt.Errorf("--owner is required with --remote")
	}
	result, err := ctx.client().Ingest(cmd.Context(), data, api.IngestParams{
		OwnerID:            flags.owner,
		FileName:           name,
		DurationSeconds:    flags.duration,
		Transition:         flags.transition,
		TransitionDuration: flags.transitionDuration,
		UseNotesTiming:     flags.useNotesTiming,
		SkipHidden:         flags.skipHidden,
	})
	if err != nil {
		return ctx.wrapDaemonError(err)
	}
	if strings.EqualFold(flags.output, "json") {
		return writeJSON(cmd, result)
	}
	if !result.Success {
		return rejectionError(result.Error)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Timeline %s (%d slides, %.1fs)\n", result.TimelineID, result.Stats.SlideCount, result.Stats.EstimatedDurationSeconds)
	if result.SourceURL != "" {
		fmt.Fprintf(out, "Source: %s\n", result.SourceURL)
	}
	return nil
}

func progressPrinter(w io.Writer) ingest.ProgressFunc {
	sampler := logging.NewProgressSampler(25)
	return func(p ingest.Progress) {
		if !sampler.ShouldLog(p.Percent, string(p.Stage)) {
			return
		}
		if p.SlidesTotal > 0 {
			fmt.Fprintf(w, "%3.0f%% %s (%d/%d slides)\n", p.Percent, p.Stage, p.SlidesDone, p.SlidesTotal)
			return
		}
		fmt.Fprintf(w, "%3.0f%% %s\n", p.Percent, p.Stage)
	}
}

func describeIngestError(err error) error {
	var perr *ingest.ProcessingError
	if !errors.As(err, &perr) {
		return err
	}
	if verr, ok := perr.ValidationError(); ok {
		return fmt.Errorf("deck rejected (%s): %s", verr.Code, verr.Error())
	}
	if parseErr, ok := perr.ParseError(); ok {
		return fmt.Errorf("deck could not be parsed: %s", parseErr.Error())
	}
	return err
}

func rejectionError(e *controller.IngestError) error {
	if e == nil {
		return fmt.Errorf("deck rejected")
	}
	if e.Code != "" {
		return fmt.Errorf("deck rejected (%s): %s", e.Code, e.Message)
	}
	return fmt.Errorf("deck rejected: %s", e.Message)
}

func printIngestSummary(w io.Writer, doc ingest.ProcessedDocument, stats ingest.Stats) {
	fmt.Fprintf(w, "%s: %d slides, %.1fs\n", doc.FileName, stats.SlideCount, doc.TotalDurationSeconds)
	for _, warning := range doc.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning.Message)
	}
	rows := make([][]string, 0, len(doc.Slides))
	for _, slide := range doc.Slides {
		hidden := ""
		if slide.Hidden {
			hidden = "hidden"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", slide.Index),
			slide.Title,
			fmt.Sprintf("%.1f", slide.DurationSeconds),
			fmt.Sprintf("%d", len(slide.Images)),
			yesNo(strings.TrimSpace(slide.Notes) != ""),
			hidden,
		})
	}
	fmt.Fprint(w, renderTable([]column{
		{"#", alignRight},
		{"Title", alignLeft},
		{"Seconds", alignRight},
		{"Images", alignRight},
		{"Notes", alignLeft},
		{"", alignLeft},
	}, rows))
}
