package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scanpipe/scanpipe/internal/core/config"
	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/infra/storage/postgres"
)

var (
	jobsStatus string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect analysis jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent analysis jobs",
	Run:   runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job and its result",
	Args:  cobra.ExactArgs(1),
	Run:   runJobsGet,
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum jobs to show")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	rootCmd.AddCommand(jobsCmd)
}

func openDB(ctx context.Context) *postgres.DB {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return db
}

func runJobsList(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	db := openDB(ctx)
	defer func() {
		_ = db.Close()
	}()

	var status domain.JobStatus
	if jobsStatus != "" {
		parsed, err := domain.ParseJobStatus(jobsStatus)
		if err != nil {
			slog.Error("Invalid status filter", "error", err)
			os.Exit(1)
		}
		status = parsed
	}

	jobs, err := postgres.NewJobRepo(db).List(ctx, status, jobsLimit)
	if err != nil {
		slog.Error("Failed to list jobs", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "JOB\tSTATUS\tOBJECT\tUPDATED")
	for _, job := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			job.JobID, job.Status, job.OriginalImageKey,
			job.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()
}

func runJobsGet(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	db := openDB(ctx)
	defer func() {
		_ = db.Close()
	}()

	job, err := postgres.NewJobRepo(db).Get(ctx, args[0])
	if err != nil {
		slog.Error("Failed to get job", "error", err)
		os.Exit(1)
	}

	out := map[string]any{"job": job}
	if result, err := postgres.NewResultRepo(db).GetByJob(ctx, job.JobID); err == nil {
		out["result"] = result
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
