package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"khabar/features/ask"
	"khabar/internal/retrieval"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed news",
	Long: `Retrieves the most relevant recent passages for the question and
generates a short answer grounded in them. Flags override the stored
retrieval settings for this question only.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().Int("top-k", 0, "number of passages to use (default: stored setting)")
	askCmd.Flags().Int("max-age-days", 0, "ignore articles older than this many days (default: stored setting)")
	askCmd.Flags().Float64("min-similarity", 0, "minimum cosine similarity (default: stored setting)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	overrides, err := overridesFromFlags(cmd.Flags())
	if err != nil {
		return err
	}

	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}

	ans, askErr := s.app.Ask.Ask(s.ctx, strings.Join(args, " "), overrides)
	if askErr == nil {
		printAnswer(cmd.OutOrStdout(), ans)
	}
	if err := s.finish(cmd); err != nil && askErr == nil {
		return err
	}
	if askErr != nil {
		return fmt.Errorf("ask: %w", askErr)
	}
	return nil
}

// overridesFromFlags returns overrides for the flags set explicitly.
func overridesFromFlags(flags *pflag.FlagSet) (*retrieval.Overrides, error) {
	var o retrieval.Overrides
	if flags.Changed("top-k") {
		v, err := flags.GetInt("top-k")
		if err != nil {
			return nil, err
		}
		o.TopK = &v
	}
	if flags.Changed("max-age-days") {
		v, err := flags.GetInt("max-age-days")
		if err != nil {
			return nil, err
		}
		o.MaxAgeDays = &v
	}
	if flags.Changed("min-similarity") {
		v, err := flags.GetFloat64("min-similarity")
		if err != nil {
			return nil, err
		}
		o.MinSimilarity = &v
	}
	return &o, nil
}

func printAnswer(w io.Writer, a *ask.Answer) {
	_, _ = fmt.Fprintf(w, "Q: %s\n\n%s\n", a.Question, a.Text)
	for _, h := range a.Hints {
		_, _ = fmt.Fprintf(w, "  hint: %s\n", h)
	}
	if len(a.Sources) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "\nSources:")
	for i, c := range a.Sources {
		_, _ = fmt.Fprintf(w, "  [%d] %s (%s, %s) %.2f\n      %s\n", i+1, c.Title, c.Source, c.Date, c.Final, c.URL)
	}
}
