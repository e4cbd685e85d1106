package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ah-its-andy/sparkconvert/internal/job"
)

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "convert local files in one batch",
		ArgsUsage: "FILE...",
		Flags: append(conversionFlags(),
			&cli.StringFlag{
				Name:     "to",
				Aliases:  []string{"t"},
				Usage:    "target extension, e.g. png, pdf, mp3",
				Required: true,
			},
		),
		Action: runConvert,
	}
}

func runConvert(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return cli.Exit("no input files", 2)
	}
	s, err := newSession(loadConfig(c))
	if err != nil {
		return err
	}
	defer s.Close()

	sources := make([]job.Source, 0, len(paths))
	for _, p := range paths {
		src, err := job.FileSource(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", p, err)
			continue
		}
		sources = append(sources, src)
	}

	res := s.manager.Submit(sources)
	for _, n := range res.Notices {
		fmt.Fprintf(os.Stderr, "%s: %s\n", n.Kind, n.Message)
	}
	target := c.String("to")
	for _, j := range res.Jobs {
		if _, err := s.manager.SetTarget(j.ID, target); err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", j.Name, err)
		}
	}
	if s.manager.Eligible() == 0 {
		return cli.Exit("nothing to convert", 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	report := s.manager.ConvertAll(ctx)
	printReport(report)
	if report.Failed > 0 || report.Completed < report.Total {
		return cli.Exit(fmt.Sprintf("%d of %d conversions failed", report.Failed, report.Total), 1)
	}
	return nil
}

func printReport(r job.BatchReport) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tTARGET\tSTATUS\tTIME\tDETAIL")
	for _, res := range r.Results {
		detail := res.OutputPath
		if res.Error != "" {
			detail = res.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\n", res.Name, res.Target, res.Status, res.DurationMs, detail)
	}
	tw.Flush()
	fmt.Printf("%d completed, %d failed in %s\n", r.Completed, r.Failed, r.Finished.Sub(r.Started).Round(time.Millisecond))
}
