package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/etdc/insight/pkg/api"
	"github.com/etdc/insight/pkg/digest"
	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/poller"
	"github.com/etdc/insight/pkg/report"
	"github.com/etdc/insight/pkg/tui"
	"github.com/etdc/insight/pkg/view"
	"github.com/spf13/cobra"
)

var (
	fullResearch bool
	detach       bool
	digestPage   int
	outputDir    string
)

var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Submit a research query and follow it until the report is ready",
	Long: `Submits a research query to the backend. The query must be at least
10 characters long. Unless --detach is given, the research task is
followed until its report is ready.

Example:
  insight research "public opinion on the new water tariff" --full`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

var watchCmd = &cobra.Command{
	Use:   "watch [task-id]",
	Short: "Follow an existing research task and show its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watch(cmd.Context(), cmd.OutOrStdout(), domain.TaskID(args[0]))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show the current status of a task or sub-task",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var digestsCmd = &cobra.Command{
	Use:   "digests",
	Short: "List generated digests",
	Args:  cobra.NoArgs,
	RunE:  runDigests,
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Download or generate digest documents",
}

var digestDownloadCmd = &cobra.Command{
	Use:   "download [digest-id]",
	Short: "Download a digest document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDigestDownload,
}

var digestGenerateCmd = &cobra.Command{
	Use:   "generate [task-id]",
	Short: "Generate a digest document for a finished research task",
	Args:  cobra.ExactArgs(1),
	RunE:  runDigestGenerate,
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recent research tasks",
	Args:  cobra.NoArgs,
	RunE:  runLatest,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "insight\n")
		fmt.Fprintf(out, "Version: %s\n", Version)
		fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
	},
}

func init() {
	researchCmd.Flags().BoolVar(&fullResearch, "full", false, "Run a detailed research")
	researchCmd.Flags().BoolVar(&detach, "detach", false, "Print the task id and exit")

	digestsCmd.Flags().IntVarP(&digestPage, "page", "p", 1, "Page to show")

	digestDownloadCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory to save into (default from config)")
	digestGenerateCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory to save into (default from config)")

	digestCmd.AddCommand(digestDownloadCmd)
	digestCmd.AddCommand(digestGenerateCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, out := cmd.Context(), cmd.OutOrStdout()
	query := strings.Join(args, " ")

	if err := api.ValidateQuery(query); err != nil {
		return err
	}

	id, err := app.Gateway.CreateResearch(ctx, query, fullResearch)
	if err != nil {
		return fmt.Errorf("failed to submit research: %w", err)
	}

	app.Logger.Info(ctx, "research submitted", map[string]interface{}{
		"task_id": id.String(),
		"full":    fullResearch,
	})

	if detach {
		fmt.Fprintln(out, id)
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Research task %s created\n", id)
	return watch(ctx, out, id)
}

func watch(ctx context.Context, out io.Writer, id domain.TaskID) error {
	if app.Interactive() {
		return watchLive(ctx, out, id)
	}
	return watchPlain(ctx, out, id)
}

func watchLive(ctx context.Context, out io.Writer, id domain.TaskID) error {
	model := tui.NewModel(ctx, tui.Options{
		TaskID:       id,
		StepInterval: app.Config.MustDuration(app.Config.Progress.StepInterval),
		View:         app.viewOptions(),
		Dominant:     app.Gateway.DominantOpinion,
	})
	producer := tui.PollProducer(app.Gateway, app.PollerConfig(), id, app.PollerOptions()...)

	final, err := tui.Run(ctx, model, producer)
	if err != nil {
		return fmt.Errorf("live view failed: %w", err)
	}

	switch {
	case final.NotFound():
		fmt.Fprintln(out, app.Renderer.NotFound(id))
		return domain.ErrTaskNotFound
	case final.Err() != nil:
		return final.Err()
	case final.Ready():
		fmt.Fprintln(out, app.Renderer.Report(final.ReportData()))
	}
	return nil
}

func watchPlain(ctx context.Context, out io.Writer, id domain.TaskID) error {
	opts := append(app.PollerOptions(),
		poller.WithStatusHook(func(s *domain.TaskStatus) {
			fmt.Fprintf(os.Stderr, "%s: %s (posts %d, comments %d, egov acts %d, adilet acts %d)\n",
				id, s.State, s.FoundPosts, s.FoundComments, s.FoundEgovNPA, s.FoundAdiletNPA)
		}),
		poller.WithSubTaskHook(func(r domain.SubTaskResult) {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", r.Type, r.State)
		}),
	)

	outcome, err := poller.New(app.Gateway, app.PollerConfig(), opts...).Poll(ctx, id)
	if errors.Is(err, domain.ErrTaskNotFound) {
		fmt.Fprintln(out, app.Renderer.NotFound(id))
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to follow research %s: %w", id, err)
	}

	data := reportData(ctx, outcome)
	fmt.Fprintln(out, app.Renderer.Report(data))
	return nil
}

// reportData aggregates an outcome and asks for its dominant opinion
func reportData(ctx context.Context, outcome *poller.Outcome) view.ReportData {
	rep := report.FromResults(outcome.Results.Snapshot())

	text, err := app.Gateway.DominantOpinion(ctx, rep.Opinions())
	if err != nil {
		app.Logger.Warn(ctx, "dominant opinion unavailable", map[string]interface{}{
			"task_id": outcome.TaskID.String(),
			"error":   err.Error(),
		})
	}

	return view.ReportData{
		TaskID:   outcome.TaskID,
		Status:   outcome.Status,
		Report:   rep,
		Dominant: view.Dominant{Text: text, Err: err},
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	id := domain.TaskID(args[0])

	status, err := app.Gateway.GetStatus(cmd.Context(), id)
	if errors.Is(err, domain.ErrTaskNotFound) {
		fmt.Fprintln(out, app.Renderer.NotFound(id))
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	fmt.Fprintln(out, app.Renderer.Status(id, status))
	return nil
}

func runDigests(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	pager := digest.NewPager(app.Gateway, app.Config.API.DigestPageSize, app.Logger.WithComponent("digest"))
	pager.SetPage(digestPage)

	if _, err := pager.Fetch(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(out, app.Renderer.Digests(pager))
	return nil
}

func runDigestDownload(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	pager := digest.NewPager(app.Gateway, app.Config.API.DigestPageSize, app.Logger.WithComponent("digest"))

	path, err := pager.Download(cmd.Context(), domain.TaskID(args[0]), downloadDir())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	return nil
}

func runDigestGenerate(cmd *cobra.Command, args []string) error {
	ctx, out := cmd.Context(), cmd.OutOrStdout()
	id := domain.TaskID(args[0])

	outcome, err := poller.New(app.Gateway, app.PollerConfig(), app.PollerOptions()...).Poll(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to collect research %s: %w", id, err)
	}

	data := reportData(ctx, outcome)
	summary := data.Report.Summary(data.Dominant.Text)

	pager := digest.NewPager(app.Gateway, app.Config.API.DigestPageSize, app.Logger.WithComponent("digest"))
	path, err := pager.Generate(ctx, id, summary, downloadDir())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	return nil
}

func runLatest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	items, err := app.Gateway.Latest(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list latest research: %w", err)
	}
	fmt.Fprintln(out, app.Renderer.History(items))
	return nil
}

func downloadDir() string {
	if outputDir != "" {
		return outputDir
	}
	return app.Config.Output.DownloadDir
}
