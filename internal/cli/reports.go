package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/timmy/reportextract/internal/domain"
)

var reportsCmd = &cobra.Command{
	Use:   "reports <report-id>...",
	Short: "Extract every iModel feeding the given reports",
	Long: `Start one extraction run per iModel referenced by the given reports and
watch the aggregated report states. A report is Failed as soon as one of its
iModels failed.

Examples:
  extract reports 4f1c...              # start and watch one report
  extract reports r1 r2 --no-watch     # start two reports and exit`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReports,
}

func runReports(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	tr := newTracker()
	tr.StartReportExtractions(ctx, args)

	w := newWatcher(cmd.OutOrStdout(), args, func(ctx context.Context, reportID string) domain.ExtractionState {
		return tr.GetReportState(ctx, reportID)
	}, tr.PendingRuns)
	return w.finish(ctx, interval, !noWatch)
}
