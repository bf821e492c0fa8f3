package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/retrieva/go/pkg/cli"
	"github.com/haivivi/retrieva/go/pkg/ingest"
)

var (
	uploadSession string
	uploadJQ      string
)

type uploadResult struct {
	SessionID   string `json:"session_id" yaml:"session_id"`
	SessionName string `json:"session_name" yaml:"session_name"`
	Filename    string `json:"filename" yaml:"filename"`
	Size        string `json:"size" yaml:"size"`
	ChunksAdded int    `json:"chunks_added" yaml:"chunks_added"`
	Elapsed     string `json:"elapsed" yaml:"elapsed"`
}

func (r uploadResult) Table() cli.Table {
	return cli.Table{
		Headers: []string{"SESSION", "FILE", "SIZE", "CHUNKS", "ELAPSED"},
		Rows:    [][]string{{r.SessionID, r.Filename, r.Size, fmt.Sprint(r.ChunksAdded), r.Elapsed}},
	}
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Index a document into a session",
	Long: `Extract the text of a document, split it into chunks and index them.

Without --session a new session named after the file is created. With
--session the session's previous content is replaced.

Supported formats: .pdf .docx .txt .sql .csv .json

Examples:
  retrieva upload manual.pdf
  retrieva upload notes.txt --session 3f2c...
  retrieva upload export.json --jq '.items[] | {title, body}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]
		start := time.Now()

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		var loadOpts []ingest.LoadOption
		if uploadJQ != "" {
			loadOpts = append(loadOpts, ingest.WithJQ(uploadJQ))
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		// Extract before touching the session, so a bad file changes nothing.
		text, err := ingest.Load(ctx, path, loadOpts...)
		if err != nil {
			return err
		}
		chunks := ingest.Split(text, splitOptions(a.cfg)...)
		filename := filepath.Base(path)

		id := uploadSession
		if id == "" {
			m, err := a.registry.Create(ctx, filename)
			if err != nil {
				return err
			}
			id = m.ID
		}
		store, err := a.registry.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("session %s: %w", id, err)
		}
		if err := store.Clear(ctx); err != nil {
			return err
		}
		if err := store.Add(ctx, chunks, filename); err != nil {
			return err
		}

		return output(uploadResult{
			SessionID:   id,
			SessionName: filename,
			Filename:    filename,
			Size:        cli.FormatBytes(info.Size()),
			ChunksAdded: len(chunks),
			Elapsed:     cli.FormatDuration(time.Since(start)),
		})
	},
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadSession, "session", "s", "", "session to replace (default: create a new one)")
	uploadCmd.Flags().StringVar(&uploadJQ, "jq", "", "jq expression applied to JSON documents")
	rootCmd.AddCommand(uploadCmd)
}
