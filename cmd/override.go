package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/store"
)

var (
	overrideCategory   string
	overrideConfidence int
	overrideEditor     string
)

var overrideCmd = &cobra.Command{
	Use:   "override <row-id>",
	Short: "Set a row's category manually",
	Long:  "Records an operator decision for a row. Overridden rows are never selected or rewritten by pipeline stages.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		o, err := parseOverride(overrideCategory, overrideConfidence, overrideEditor)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.OverrideRow(ctx, args[0], o); err != nil {
			return err
		}

		zap.L().Info("row overridden",
			zap.String("row_id", args[0]),
			zap.String("category", string(o.Category)),
			zap.String("edited_by", o.EditedBy),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], o.Category)
		return nil
	},
}

func parseOverride(category string, confidence int, editor string) (store.Override, error) {
	c, err := model.ParseCategory(category)
	if err != nil {
		return store.Override{}, err
	}
	if confidence < 0 || confidence > 100 {
		return store.Override{}, eris.Errorf("confidence must be between 0 and 100, got %d", confidence)
	}
	if editor == "" {
		editor = os.Getenv("USER")
	}
	return store.Override{Category: c, Confidence: confidence, EditedBy: editor}, nil
}

func init() {
	overrideCmd.Flags().StringVar(&overrideCategory, "category", "", "category (CLIENT, PRESCRIBER, SUPPLIER, NEEDS_QUALIFICATION or a legacy label)")
	overrideCmd.Flags().IntVar(&overrideConfidence, "confidence", 100, "confidence to record (0-100)")
	overrideCmd.Flags().StringVar(&overrideEditor, "by", "", "editor name (defaults to $USER)")
	_ = overrideCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(overrideCmd)
}
