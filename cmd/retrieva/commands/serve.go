package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/retrieva/go/pkg/cli"
	"github.com/haivivi/retrieva/go/pkg/ingest"
	"github.com/haivivi/retrieva/go/pkg/server"
)

var (
	serveAddr string
	serveJQ   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Serve the upload page and the JSON API until interrupted.

Routes:
  GET    /                upload and query page
  POST   /upload/         multipart "file" [+ "session_id"]
  POST   /query/          {"question", "session_id", "k"}
  GET    /sessions/       session list
  DELETE /sessions/{id}   delete a session
  GET    /ws              websocket queries

Examples:
  retrieva serve
  retrieva serve --addr 127.0.0.1:9000 -v`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		// ctx is done on shutdown; flushing must still run.
		defer a.Close(cmd.Context())

		gen, err := newGenerator(ctx, a.cfg, a.logger)
		if err != nil {
			return err
		}
		if gen == nil {
			a.logger.Warn("no GEMINI_API_KEY or OPENAI_API_KEY; queries return context only")
		}

		var loadOpts []ingest.LoadOption
		if serveJQ != "" {
			loadOpts = append(loadOpts, ingest.WithJQ(serveJQ))
		}

		addr := serveAddr
		if addr == "" {
			addr = a.cfg.Server.Addr
		}
		if addr == "" {
			addr = cli.DefaultAddr
		}

		srv := server.New(server.Config{
			Registry:     a.registry,
			Generator:    gen,
			K:            searchK(a.cfg, 0),
			SplitOptions: splitOptions(a.cfg),
			LoadOptions:  loadOpts,
			TempDir:      a.layout.UploadsDir(),
			Logger:       a.logger,
		})
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, else :8000)")
	serveCmd.Flags().StringVar(&serveJQ, "jq", "", "jq expression applied to uploaded JSON documents")
	rootCmd.AddCommand(serveCmd)
}
