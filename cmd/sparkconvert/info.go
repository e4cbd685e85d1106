package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ah-its-andy/sparkconvert/internal/db"
	"github.com/ah-its-andy/sparkconvert/internal/formats"
	"github.com/ah-its-andy/sparkconvert/internal/utils"
)

func formatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "formats",
		Usage: "list supported source types and their targets",
		Action: func(c *cli.Context) error {
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tFAMILY\tTARGETS")
			for _, e := range formats.Table() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Source, e.Family, strings.Join(e.Targets, " "))
			}
			return tw.Flush()
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "show accumulated usage",
		Flags: storeFlags(),
		Action: withStore(func(store *db.Store, c *cli.Context) error {
			st, err := store.CurrentStats(c.Context)
			if err != nil {
				return err
			}
			last := "never"
			if st.LastTimestamp != nil {
				last = st.LastTimestamp.Local().Format(time.RFC3339)
			}
			fmt.Printf("conversions: %d\n", st.Count)
			fmt.Printf("source bytes: %d\n", st.TotalBytes)
			fmt.Printf("last conversion: %s\n", last)
			return nil
		}),
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list finished conversions",
		Flags: append(storeFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "number of rows",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "completed or error",
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "only show conversions of this exact file content",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print JSON instead of a table",
			},
		),
		Action: withStore(func(store *db.Store, c *cli.Context) error {
			rows, err := historyRows(c.Context, store, c)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				data, err := json.MarshalIndent(rows, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling history to JSON: %w", err)
				}
				fmt.Printf("%s\n", data)
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FINISHED\tFILE\tTARGET\tSTRATEGY\tSTATUS\tTIME\tDETAIL")
			for _, r := range rows {
				detail := r.OutputPath
				if r.ErrorMessage != "" {
					detail = r.ErrorMessage
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%dms\t%s\n",
					r.EndTime.Local().Format("2006-01-02 15:04:05"), r.FileName, r.Target,
					r.Strategy, r.Status, r.DurationMs, detail)
			}
			return tw.Flush()
		}),
	}
}

func historyRows(ctx context.Context, store *db.Store, c *cli.Context) ([]db.TaskHistory, error) {
	if path := c.String("file"); path != "" {
		sum, err := utils.MD5File(path, loadConfig(c).MD5ChunkSize)
		if err != nil {
			return nil, err
		}
		return store.TasksBySourceMD5(ctx, sum)
	}
	rows, _, err := store.ListTasks(ctx, c.String("status"), c.Int("limit"), 0)
	return rows, err
}
