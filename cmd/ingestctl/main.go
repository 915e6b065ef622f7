// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Command ingestctl uploads a file to the ingest API and follows the job.
//
//	ingestctl --server https://ingest.example.com upload --wait ventas.csv
//	ingestctl status 6f1c...
//	ingestctl data --limit 20
//
// The bearer token is read from --token or INGEST_TOKEN; a .env file in the
// working directory is loaded first.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/tomtom215/riqo-ingest/internal/client"
)

// Exit codes.
const (
	exitFailed          = 1
	exitStillProcessing = 3
)

func main() {
	_ = godotenv.Load()

	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, client.ErrStillProcessing) {
			os.Exit(exitStillProcessing)
		}
		os.Exit(exitFailed)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "ingestctl",
		Usage:     "upload CSV/Excel files to the ingest API and poll their status",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "ingest API base URL",
				EnvVars: []string{"INGEST_SERVER"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:     "token",
				Usage:    "bearer token issued by the auth provider",
				EnvVars:  []string{"INGEST_TOKEN"},
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "status poll interval",
				Value: client.DefaultPollInterval,
			},
			&cli.IntFlag{
				Name:  "attempts",
				Usage: "maximum status polls before giving up",
				Value: client.DefaultMaxAttempts,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "upload a file",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "poll until the job finishes"},
				},
				Action: uploadAction,
			},
			{
				Name:      "status",
				Usage:     "show a job's status once",
				ArgsUsage: "<upload-id>",
				Action:    statusAction,
			},
			{
				Name:      "wait",
				Usage:     "poll a job until it finishes",
				ArgsUsage: "<upload-id>",
				Action:    waitAction,
			},
			{
				Name:  "data",
				Usage: "print a page of the destination table",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100},
					&cli.IntFlag{Name: "offset", Value: 0},
				},
				Action: dataAction,
			},
		},
	}
}

func newClient(c *cli.Context) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:      c.String("server"),
		Token:        c.String("token"),
		PollInterval: c.Duration("interval"),
		MaxAttempts:  c.Int("attempts"),
	})
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one argument: %s", name)
	}
	return c.Args().First(), nil
}

func uploadAction(c *cli.Context) error {
	path, err := requireArg(c, "<file>")
	if err != nil {
		return err
	}
	api, err := newClient(c)
	if err != nil {
		return err
	}

	res, err := api.UploadFile(c.Context, path)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.UploadID != "" {
			return fmt.Errorf("%w (running upload: %s)", err, apiErr.UploadID)
		}
		return err
	}
	if !c.Bool("wait") {
		return printJSON(c.App.Writer, res)
	}

	fmt.Fprintf(c.App.ErrWriter, "uploaded %s as %s, waiting...\n", res.FileName, res.UploadID)
	return wait(c, api, res.UploadID)
}

func statusAction(c *cli.Context) error {
	id, err := requireArg(c, "<upload-id>")
	if err != nil {
		return err
	}
	api, err := newClient(c)
	if err != nil {
		return err
	}
	status, err := api.Status(c.Context, id)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, status)
}

func waitAction(c *cli.Context) error {
	id, err := requireArg(c, "<upload-id>")
	if err != nil {
		return err
	}
	api, err := newClient(c)
	if err != nil {
		return err
	}
	return wait(c, api, id)
}

func wait(c *cli.Context, api *client.Client, id string) error {
	started := time.Now()
	status, err := api.WaitForCompletion(c.Context, id)
	if status != nil {
		if perr := printJSON(c.App.Writer, status); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	rows := int64(0)
	if status.RowsProcessed != nil {
		rows = *status.RowsProcessed
	}
	fmt.Fprintf(c.App.ErrWriter, "completed: %d rows in %s\n", rows, time.Since(started).Round(time.Second))
	return nil
}

func dataAction(c *cli.Context) error {
	api, err := newClient(c)
	if err != nil {
		return err
	}
	page, err := api.Data(c.Context, c.Int("limit"), c.Int("offset"))
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, page)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
