package cmd

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/app"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs the full listing crawl.
func newCrawlCmd() *cobra.Command {
	var noProgress bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every application on the configured listing page",
		Long: `Fetches the listing page, resolves every application link, then renders,
extracts and appends each application with its comments to the workbook.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			links, err := appInstance.Links(cmd.Context())
			if err != nil {
				return fmt.Errorf("discover links: %w", err)
			}
			return runTargets(cmd, appInstance, links, !noProgress)
		},
	}
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

// newProcessCmd creates the 'process' subcommand for explicit application URLs.
func newProcessCmd() *cobra.Command {
	var noProgress bool
	cmd := &cobra.Command{
		Use:   "process <url>...",
		Short: "Process the given application page URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runTargets(cmd, appInstance, args, !noProgress)
		},
	}
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func runTargets(cmd *cobra.Command, appInstance *app.App, urls []string, progress bool) error {
	var onDone func(string, error)
	if progress && len(urls) > 0 {
		bar := newProgressBar(cmd.ErrOrStderr(), len(urls))
		onDone = func(string, error) { _ = bar.Add(1) }
		defer func() { _ = bar.Finish() }()
	}

	summary, err := appInstance.Process(cmd.Context(), urls, onDone)
	printSummary(cmd.OutOrStdout(), summary)
	if err != nil {
		appInstance.Logger().Error("run ended early", zap.Error(err))
		return err
	}
	return nil
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("apps"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func printSummary(w io.Writer, s app.Summary) {
	fmt.Fprintf(w, "processed: %d\nskipped: %d\n", s.Counters.Processed, s.Counters.Skipped)
	if s.Counters.Seen > 0 {
		fmt.Fprintf(w, "already seen: %d\n", s.Counters.Seen)
	}
	fmt.Fprintf(w, "comments: %d\nretries: %d\n", s.Counters.Comments, s.Counters.Retries)
	fmt.Fprintf(w, "workbook %s: %d app rows, %d comment rows\n", s.WorkbookPath, s.AppRows, s.CommentRows)
	fmt.Fprintf(w, "failure ledger: %s\n", s.LedgerPath)
}
