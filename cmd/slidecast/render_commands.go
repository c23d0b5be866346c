package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"slidecast/internal/controller"
	"slidecast/internal/jobs"
	"slidecast/internal/timeline"
)

func newRenderCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSubmitCommand(ctx),
		newJobCommand(ctx),
		newJobsCommand(ctx),
		newCancelCommand(ctx),
		newRetryCommand(ctx),
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var req controller.SubmitRequest
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "submit TIMELINE_ID",
		Short: "Queue a render of an ingested timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.TimelineRef = strings.TrimSpace(args[0])
			resp, err := ctx.client().Submit(cmd.Context(), req)
			if err != nil {
				return ctx.wrapDaemonError(err)
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s %s\n", resp.JobID, resp.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.OwnerID, "owner", "", "Owner of the render job")
	cmd.Flags().StringVar(&req.OutputFormat, "format", "mp4", "Output container (mp4, webm, mov)")
	cmd.Flags().StringVar(&req.QualityPreset, "quality", "standard", "Quality preset (draft, standard, high)")
	cmd.Flags().IntVar(&req.Priority, "priority", 0, "Queue priority 0-9, higher runs first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "job JOB_ID",
		Short: "Show one render job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := ctx.client().Job(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return ctx.wrapDaemonError(err)
			}
			if asJSON {
				return writeJSON(cmd, view)
			}
			printJob(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List render jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]jobs.Status, 0, len(statuses))
			for _, raw := range statuses {
				status, ok := jobs.ParseStatus(strings.ToLower(strings.TrimSpace(raw)))
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter = append(filter, status)
			}
			views, err := ctx.client().Jobs(cmd.Context(), owner, filter...)
			if err != nil {
				return ctx.wrapDaemonError(err)
			}
			if asJSON {
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "No render jobs")
				return nil
			}
			fmt.Fprint(out, renderTable(jobColumns, jobRows(views)))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Only show jobs for this owner")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the jobs as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a queued or running render job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := ctx.client().Cancel(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return ctx.wrapDaemonError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s %s\n", view.ID, view.Status)
			return nil
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry JOB_ID",
		Short: "Resubmit a failed render job as a new job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Retry(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return ctx.wrapDaemonError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s %s (retry of %s)\n", resp.JobID, resp.Status, strings.TrimSpace(args[0]))
			return nil
		},
	}
}

func newTimelineCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "timeline TIMELINE_ID",
		Short: "Print a stored timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := ctx.client().Timeline(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return ctx.wrapDaemonError(err)
			}
			switch strings.ToLower(format) {
			case "json":
				return timeline.EncodeJSON(cmd.OutOrStdout(), record.Timeline)
			case "yaml", "":
				return timeline.EncodeYAML(cmd.OutOrStdout(), record.Timeline)
			default:
				return fmt.Errorf("unsupported format %q (want yaml or json)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format: yaml or json")
	return cmd
}

var jobColumns = []column{
	{"ID", alignLeft},
	{"Owner", alignLeft},
	{"Status", alignLeft},
	{"Progress", alignRight},
	{"Format", alignLeft},
	{"Attempts", alignRight},
	{"Updated", alignLeft},
}

func jobRows(views []controller.JobView) [][]string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.ID,
			v.OwnerID,
			string(v.Status),
			fmt.Sprintf("%.0f%%", v.Progress),
			v.OutputFormat + "/" + v.QualityPreset,
			fmt.Sprintf("%d/%d", v.Attempts, v.MaxAttempts),
			v.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	return rows
}

func printJob(w io.Writer, v controller.JobView) {
	fields := [][2]string{
		{"ID", v.ID},
		{"Owner", v.OwnerID},
		{"Timeline", v.TimelineRef},
		{"Status", string(v.Status)},
		{"Progress", fmt.Sprintf("%.1f%% %s", v.Progress, v.ProgressMessage)},
		{"Output", v.OutputFormat + " (" + v.QualityPreset + ")"},
		{"Priority", strconv.Itoa(v.Priority)},
		{"Attempts", fmt.Sprintf("%d of %d", v.Attempts, v.MaxAttempts)},
		{"Created", v.CreatedAt.Local().Format(time.DateTime)},
	}
	if v.OutputURL != "" {
		fields = append(fields, [2]string{"Output URL", v.OutputURL})
	}
	if v.ErrorMessage != "" {
		fields = append(fields, [2]string{"Error", v.ErrorMessage})
	}
	for _, f := range fields {
		fmt.Fprintf(w, "%-10s %s\n", f[0]+":", strings.TrimSpace(f[1]))
	}
}
