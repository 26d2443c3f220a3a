package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pdfbot/internal/batch"
	"pdfbot/internal/config"
	"pdfbot/internal/models"
	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/queue"
)

func installCmd(a *app) *cobra.Command {
	var (
		storagePath string
		force       bool
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Create the storage layout and write a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if storagePath != "" {
				a.cfg.StoragePath = storagePath
			}
			layout := a.cfg.Layout()
			if err := layout.Create(); err != nil {
				return err
			}

			path := a.cfgPath
			if path == "" {
				path = config.DefaultFile
			}
			_, statErr := os.Stat(path)
			switch {
			case statErr == nil && !force:
				fmt.Fprintf(cmd.OutOrStdout(), "Config %s already exists, use --force to overwrite\n", path)
			default:
				if err := a.cfg.Write(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Storage ready at %s\n", layout.Root)
			return nil
		},
	}
	cmd.Flags().StringVar(&storagePath, "storage-path", "", "storage root (overrides config)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func pushCmd(a *app) *cobra.Command {
	var meta string
	cmd := &cobra.Command{
		Use:   "push <url>",
		Short: "Queue a URL for rendering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var m map[string]any
			if meta != "" {
				if err := json.Unmarshal([]byte(meta), &m); err != nil {
					return errors.ValidationField("meta", "must be a JSON object")
				}
			}

			engine, err := a.openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer engine.Close()

			job, err := engine.AddToQueue(cmd.Context(), args[0], m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (%s)\n", job.ID, job.URL)
			return nil
		},
	}
	cmd.Flags().StringVar(&meta, "meta", "", `JSON object stored with the job, e.g. '{"order":42}'`)
	return cmd
}

func generateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <jobID>",
		Short: "Make one generation attempt for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer engine.Close()

			job, err := engine.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return errors.NotFound("job", args[0])
			}
			return a.process(cmd, engine, job)
		},
	}
}

func shiftCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shift",
		Short: "Process the oldest job that is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer engine.Close()

			busy, err := engine.IsBusy(cmd.Context())
			if err != nil {
				return err
			}
			if busy {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is busy, run `pdfbot unlock` if no batch is running")
				return nil
			}

			job, err := engine.GetNext(cmd.Context(), engine.GenerationPolicy())
			if err != nil {
				return err
			}
			if job == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs are due")
				return nil
			}
			return a.process(cmd, engine, job)
		},
	}
}

func (a *app) process(cmd *cobra.Command, engine *queue.Engine, job *models.Job) error {
	n, err := a.notifier()
	if err != nil {
		return err
	}
	res, err := engine.ProcessJob(cmd.Context(), a.renderer(), job, n)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generated %s -> %s\n", res.Job.ID, res.Generation.Location.String())
	if res.Ping != nil {
		fmt.Fprintf(out, "Webhook %s responded %d\n", res.Ping.URL, res.Ping.Status)
	}
	return nil
}

func shiftAllCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shift:all",
		Short: "Process every due job in parallel chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer engine.Close()

			runner, err := a.runner(engine)
			if err != nil {
				return err
			}
			sum, err := runner.RunGenerations(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), "generations", sum)
			return nil
		},
	}
}

func printSummary(w io.Writer, kind string, sum batch.Summary) {
	if sum.Skipped {
		fmt.Fprintln(w, "Queue is busy, skipped")
		return
	}
	fmt.Fprintf(w, "%d %s attempted in %d chunk(s): %d succeeded, %d failed (%s)\n",
		sum.Total, kind, sum.Chunks, sum.Succeeded, sum.Failed, sum.Duration.Round(time.Millisecond))
}

func jobsCmd(a *app) *cobra.Command {
	var opts queue.ListOptions
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer engine.Close()

			jobs, err := engine.GetList(cmd.Context(), opts)
			if err != nil {
				return err
			}
			maxTries := engine.GenerationPolicy().MaxTries

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tURL\tSTATUS\tGENERATIONS\tPINGS\tCREATED\tLOCATION")
			for _, j := range jobs {
				loc := "-"
				if g := j.SuccessfulGeneration(); g != nil && g.Location != nil {
					loc = g.Location.String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					j.ID, j.URL, j.Status(maxTries), len(j.Generations), len(j.Pings),
					j.CreatedAt.Format(time.RFC3339), loc)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only jobs that exhausted their attempts")
	cmd.Flags().BoolVar(&opts.Completed, "completed", false, "only completed jobs")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of jobs (0 for all)")
	return cmd
}

func pingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping <jobID>",
		Short: "Send the webhook for a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.requireNotifier()
			if err != nil {
				return err
			}
			engine, err := a.openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer engine.Close()

			job, err := engine.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return errors.NotFound("job", args[0])
			}
			ping, err := engine.AttemptPing(cmd.Context(), job, n)
			if err != nil {
				return err
			}
			if !ping.Succeeded() {
				return errors.Newf(errors.CodeDelivery, "webhook %s failed: status %d %s", ping.URL, ping.Status, ping.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook %s responded %d\n", ping.URL, ping.Status)
			return nil
		},
	}
}

func pingRetryFailedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping:retry-failed",
		Short: "Retry the webhook for completed jobs without an accepted delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireNotifier(); err != nil {
				return err
			}
			engine, err := a.openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer engine.Close()

			runner, err := a.runner(engine)
			if err != nil {
				return err
			}
			sum, err := runner.RunPings(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), "pings", sum)
			return nil
		},
	}
}

func pingsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pings <jobID>",
		Short: "Show the webhook history of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer engine.Close()

			job, err := engine.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return errors.NotFound("job", args[0])
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMETHOD\tURL\tSTATUS\tSENT\tERROR")
			for _, p := range job.Pings {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					p.ID, p.Method, p.URL, p.Status, p.SentAt.Format(time.RFC3339), p.Error)
			}
			return tw.Flush()
		},
	}
}

func purgeCmd(a *app) *cobra.Command {
	var opts queue.PurgeOptions
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove completed jobs, and optionally failed and new ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer engine.Close()

			n, err := engine.Purge(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "also remove failed jobs")
	cmd.Flags().BoolVar(&opts.New, "new", false, "also remove jobs never attempted")
	return cmd
}

func unlockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Clear the busy flag left by an interrupted batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.SetIsBusy(cmd.Context(), false); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue unlocked")
			return nil
		},
	}
}
