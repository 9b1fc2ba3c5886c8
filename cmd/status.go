package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/contact-classifier/internal/model"
)

var (
	statusRows     int
	statusActivity int
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's progress, rows and recent activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printJob(out, job)

		if statusRows > 0 {
			rows, err := st.ListRows(ctx, job.ID, statusRows, 0)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printRows(out, rows, job.Language)
		}
		if statusActivity > 0 {
			entries, err := st.ListActivity(ctx, job.ID, statusActivity)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printActivity(out, entries)
		}
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		jobs, err := st.ListJobs(ctx, model.JobStatus(status), limit)
		if err != nil {
			return err
		}
		printJobs(cmd.OutOrStdout(), jobs)
		return nil
	},
}

func printJob(w io.Writer, job *model.Job) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Job:\t%s\n", job.ID)
	fmt.Fprintf(tw, "Status:\t%s\n", job.Status)
	if job.CurrentStep != "" {
		fmt.Fprintf(tw, "Step:\t%s\n", job.CurrentStep)
	}
	fmt.Fprintf(tw, "Language:\t%s\n", job.Language)
	fmt.Fprintf(tw, "Rows:\t%d/%d processed\n", job.ProcessedRows, job.TotalRows)
	fmt.Fprintf(tw, "AI rows:\t%d (%.1f%%)\n", job.AIRowsClassified, job.AIUsagePercent)
	fmt.Fprintf(tw, "Avg confidence:\t%.1f\n", job.AvgConfidence)
	fmt.Fprintf(tw, "Needs review:\t%d\n", job.NeedsReviewCount)
	fmt.Fprintf(tw, "Search calls:\t%d\n", job.SearchCallsCount)
	fmt.Fprintf(tw, "AI tokens:\t%d\n", job.AITokensUsed)
	if job.ErrorMessage != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", job.ErrorMessage)
	}
	fmt.Fprintf(tw, "Updated:\t%s\n", job.UpdatedAt.Format(time.RFC3339))
	_ = tw.Flush()
}

func printJobs(w io.Writer, jobs []model.Job) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tROWS\tAI %\tREVIEW\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%.1f\t%d\t%s\n",
			j.ID, j.Status, j.ProcessedRows, j.TotalRows, j.AIUsagePercent,
			j.NeedsReviewCount, j.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func printRows(w io.Writer, rows []model.Row, lang string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tNAME\tCATEGORY\tCONF\tMETHOD\tREVIEW\tSTATUS")
	for _, r := range rows {
		category := "-"
		if r.Category != "" {
			category = r.Category.Label(lang)
		}
		conf := "-"
		if r.Confidence != nil {
			conf = fmt.Sprintf("%d", *r.Confidence)
		}
		review := ""
		if r.NeedsReview {
			review = "yes"
		}
		if r.ManualOverride {
			review = "override"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Ordinal, r.ID, r.Contact.Name, category, conf, r.Method, review, r.Status)
	}
	_ = tw.Flush()
}

func printActivity(w io.Writer, entries []model.ActivityEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSEVERITY\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Severity, e.Message)
	}
	_ = tw.Flush()
}

func init() {
	statusCmd.Flags().IntVar(&statusRows, "rows", 0, "number of rows to list")
	statusCmd.Flags().IntVar(&statusActivity, "activity", 10, "number of activity entries to list")
	jobsCmd.Flags().String("status", "", "filter by job status")
	jobsCmd.Flags().Int("limit", 20, "maximum jobs to list")
	rootCmd.AddCommand(statusCmd, jobsCmd)
}
