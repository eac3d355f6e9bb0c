package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/urfave/cli/v3"
)

func planCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Run and inspect coverage plans",
		Commands: []*cli.Command{
			planRunCommand(),
			planShowCommand(),
		},
	}
}

func planRunCommand() *cli.Command {
	var (
		cfg      config
		req      model.FetchRequest
		maxCalls int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "max-calls",
			Usage:       "Stop after this many provider calls, 0 for no limit",
			Sources:     cli.EnvVars("PLACESET_MAX_CALLS"),
			Destination: &maxCalls,
		},
	}
	flags = append(flags, requestFlags(&req)...)
	flags = append(flags, repositoryFlags(&cfg)...)
	flags = append(flags, providerFlags(&cfg)...)
	flags = append(flags, acquisitionFlags(&cfg)...)

	return &cli.Command{
		Name:  "run",
		Usage: "Acquire every step of the coverage plan of a request",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := cfg.newDataset(ctx)
			if err != nil {
				return err
			}
			defer closer()

			w := c.Root().Writer
			s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			s.Suffix = " starting plan"
			s.Start()

			progress, err := uc.RunPlan(ctx, &req, int(maxCalls), func(p *model.PlanProgress) {
				s.Lock()
				s.Suffix = fmt.Sprintf(" %s: %d%% (%d calls)", p.Name, p.Progress, p.APICalls)
				s.Unlock()
			})
			s.Stop()
			if err != nil {
				return err
			}

			return writeJSON(w, progress)
		},
	}
}

func planShowCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "show",
		Usage:     "Show the steps of a coverage plan",
		ArgsUsage: "<plan-name>",
		Flags:     repositoryFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			name := c.Args().First()
			if name == "" {
				return goerr.New("plan name is required")
			}

			repo, closer, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer closer()

			p, err := cfg.newPlanner(repo).Get(ctx, name)
			if err != nil {
				return err
			}
			progress, err := repo.GetPlanProgress(ctx, name)
			if err != nil {
				return goerr.Wrap(err, "failed to load plan progress", goerr.V("plan", name))
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "Plan: %s\n", p.Name)
			fmt.Fprintf(w, "Created: %s\n", p.CreatedAt.Format(time.RFC3339))
			if progress != nil {
				fmt.Fprintf(w, "Progress: %d%% (%d calls)\n", progress.Progress, progress.APICalls)
				if progress.CompletedAt != nil {
					fmt.Fprintf(w, "Completed: %s\n", progress.CompletedAt.Format(time.RFC3339))
				}
			}
			fmt.Fprintf(w, "\n")

			for _, s := range p.Steps {
				fmt.Fprintf(w, "%4d  %-10s  %-8s  lat=%.5f lng=%.5f r=%.0f\n",
					s.Index, "circle="+s.Circle, s.Status, s.Geography.Lat, s.Geography.Lng, s.Geography.Radius)
			}
			return nil
		},
	}
}
