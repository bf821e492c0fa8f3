package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/haivivi/retrieva/go/pkg/answer"
	"github.com/haivivi/retrieva/go/pkg/cli"
	"github.com/haivivi/retrieva/go/pkg/session"
)

var (
	querySession  string
	queryK        int
	queryNoAnswer bool
)

type queryResult struct {
	Question string        `json:"question" yaml:"question"`
	Answer   string        `json:"answer,omitempty" yaml:"answer,omitempty"`
	Context  []session.Hit `json:"context" yaml:"context"`
}

func (r queryResult) Table() cli.Table {
	t := cli.Table{Headers: []string{"#", "DISTANCE", "SOURCE", "CHUNK"}}
	for i, h := range r.Context {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(float64(h.Distance), 'f', 4, 32),
			h.Source,
			h.Text,
		})
	}
	return t
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question against a session",
	Long: `Retrieve the chunks nearest to the question and answer from them.

The answer is generated with Gemini when GEMINI_API_KEY is set, otherwise
with OpenAI when OPENAI_API_KEY is set. Use --no-answer to only retrieve.

Examples:
  retrieva query "How long is the warranty?" --session 3f2c...
  retrieva query "return policy" -s 3f2c... -k 5 --no-answer -o table`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if querySession == "" {
			return fmt.Errorf("--session is required")
		}
		question := args[0]

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		store, err := a.registry.Get(ctx, querySession)
		if err != nil {
			return fmt.Errorf("session %s: %w", querySession, err)
		}
		hits, err := store.Search(ctx, question, searchK(a.cfg, queryK))
		if err != nil {
			return err
		}
		if hits == nil {
			hits = []session.Hit{}
		}
		res := queryResult{Question: question, Context: hits}

		if !queryNoAnswer {
			gen, err := newGenerator(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			if gen == nil {
				return fmt.Errorf("%w (or pass --no-answer)", answer.ErrNoProvider)
			}
			if res.Answer, err = gen.Answer(ctx, question, hits); err != nil {
				return fmt.Errorf("generate answer: %w", err)
			}
		}

		if formatOutput == string(cli.FormatTable) && res.Answer != "" {
			fmt.Println(res.Answer)
			fmt.Println()
		}
		return output(res)
	},
}

func init() {
	queryCmd.Flags().StringVarP(&querySession, "session", "s", "", "session to query (required)")
	queryCmd.Flags().IntVarP(&queryK, "k", "k", 0, "number of chunks to retrieve (default from config, else 3)")
	queryCmd.Flags().BoolVar(&queryNoAnswer, "no-answer", false, "only retrieve context, do not generate an answer")
	rootCmd.AddCommand(queryCmd)
}
