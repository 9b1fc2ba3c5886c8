package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/activity"
	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/normalize"
	"github.com/sells-group/contact-classifier/internal/store"
	"github.com/sells-group/contact-classifier/internal/tabular"
)

var (
	importFilePath string
	importLanguage string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a CSV or XLSX contact list as a new job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if importFilePath == "" {
			return eris.New("import file is required (--file)")
		}
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := importFile(ctx, st, importFilePath, importLanguage)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), job.ID)
		return nil
	},
}

// importFile reads path into a new job and hands it to the pipeline by
// moving it from PARSING to PENDING. A file without data rows leaves the job
// FAILED.
func importFile(ctx context.Context, st store.Store, path, lang string) (*model.Job, error) {
	table, err := tabular.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	contacts := make([]model.Contact, 0, len(table.Records))
	for _, rec := range table.Records {
		contacts = append(contacts, normalize.Record(rec))
	}

	job, err := st.CreateJob(ctx, lang)
	if err != nil {
		return nil, eris.Wrap(err, "import: create job")
	}
	rec := activity.New(st)

	if len(contacts) == 0 {
		if err := st.FailJob(ctx, job.ID, "input file has no data rows"); err != nil {
			return nil, eris.Wrap(err, "import: fail empty job")
		}
		rec.Error(ctx, job.ID, "Import failed: the file has no data rows", map[string]any{"file": path})
		return nil, eris.Errorf("import: %s has no data rows", path)
	}

	total, err := st.AddRows(ctx, job.ID, contacts)
	if err != nil {
		_ = st.FailJob(ctx, job.ID, err.Error())
		return nil, eris.Wrap(err, "import: add rows")
	}
	if _, err := st.TransitionJob(ctx, job.ID, model.JobStatusParsing, model.JobStatusPending); err != nil {
		return nil, eris.Wrap(err, "import: mark pending")
	}

	rec.Info(ctx, job.ID, fmt.Sprintf("Imported %d contacts", total), map[string]any{
		"file":    path,
		"headers": table.Headers,
	})
	zap.L().Info("import complete",
		zap.String("job_id", job.ID),
		zap.Int("rows", total),
		zap.String("file", path),
	)

	return st.GetJob(ctx, job.ID)
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to CSV or XLSX file (required)")
	importCmd.Flags().StringVar(&importLanguage, "lang", "fr", "job language (fr or en)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
