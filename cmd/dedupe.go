package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"metal-catalog-service/internal/domain"
	"metal-catalog-service/internal/images"
)

var dedupeApply bool

var dedupeImagesCmd = &cobra.Command{
	Use:   "dedupe-images",
	Short: "Collapse vendor image renditions to one URL per picture",
	Long: `Group product image URLs that point at renditions of the same picture
(for example "-300x300" or "_thumb" variants) and pick one canonical URL per group.

Without --apply the planned rewrites are only printed. With --apply every product is
pointed at its group's canonical URL; failed rewrites are logged and skipped.

Example:
  metal-catalog dedupe-images
  metal-catalog dedupe-images --apply
`,
	RunE: runDedupeImages,
}

func init() {
	dedupeImagesCmd.Flags().BoolVar(&dedupeApply, "apply", false, "Write the planned rewrites")
}

func runDedupeImages(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return dedupeAndReport(ctx, a.store, dedupeApply, a.log.Named("images"), cmd.OutOrStdout())
}

type imageStore interface {
	ListProductImages(ctx context.Context) ([]domain.ProductImage, error)
	images.Writer
}

type dedupeOutput struct {
	Report images.Report       `json:"report"`
	Apply  *images.ApplyResult `json:"apply,omitempty"`
}

func dedupeAndReport(ctx context.Context, s imageStore, apply bool, log *zap.SugaredLogger, w io.Writer) error {
	refs, err := s.ListProductImages(ctx)
	if err != nil {
		return err
	}

	out := dedupeOutput{Report: images.Deduplicate(refs)}
	log.Infow("product images scanned",
		"scanned", out.Report.Scanned, "unique", out.Report.Unique, "rewrites", len(out.Report.Rewrites))

	if apply {
		res := images.Apply(ctx, s, out.Report, log)
		out.Apply = &res
	}
	return printJSON(w, out)
}
