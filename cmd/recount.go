package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"metal-catalog-service/internal/recount"
)

var recountCmd = &cobra.Command{
	Use:   "recount",
	Short: "Recompute stored category product totals",
	Long: `Recompute every category's product total (products in the category and all of its
descendants) and store the totals that changed. The run summary is printed as JSON.

Categories whose total could not be written are reported in the summary and retried by
the next run; they do not fail the command. The command fails only when the category
tree or the product counts cannot be read.

Example:
  metal-catalog recount
  RECOUNT_INCLUDE_INACTIVE=true metal-catalog recount
`,
	RunE: runRecount,
}

func runRecount(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return recountAndReport(ctx, a.aggregator(), a.log, cmd.OutOrStdout())
}

type recountRunner interface {
	Run(ctx context.Context) (*recount.Summary, error)
}

// recountAndReport runs one recount and prints its summary. Only a failed run is an error;
// per-category write failures are part of the summary.
func recountAndReport(ctx context.Context, r recountRunner, log *zap.SugaredLogger, w io.Writer) error {
	summary, err := r.Run(ctx)
	if err != nil {
		log.Errorw("category recount aborted", "error", err)
		return err
	}
	if summary.Failed > 0 {
		log.Warnw("some category totals were not stored", "failed", summary.Failed)
	}
	return printJSON(w, summary)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
