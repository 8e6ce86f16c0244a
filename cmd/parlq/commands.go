package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/halwell/parlq/internal/config"
	"github.com/halwell/parlq/internal/pipeline"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about UK parliamentary data",
	Long: `Ask a question about UK parliamentary data.

Examples:
  parlq ask "Who was the MP for Sheffield Hallam in March 1992?"
  parlq ask "Find constituencies matching Birmingham"
  parlq ask "What debates covered coal mining?" --from 1984-01-01 --to 1985-12-31
  parlq ask "Climate change debates" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"query": query}
		if from != "" {
			req["start_date"] = from
		}
		if to != "" {
			req["end_date"] = to
		}

		resp, err := client.post(cmd.Context(), "/ask", req)
		if err != nil {
			return err
		}

		var answer pipeline.Answer
		if err := decodeJSON(resp, &answer); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(answer)
		}

		printAnswer(answer)
		return nil
	},
}

func printAnswer(answer pipeline.Answer) {
	printStatus("Intent", "%s (confidence %.2f)", answer.Analysis.Intent, answer.Analysis.Confidence)
	if len(answer.Analysis.Entities) > 0 {
		printStatus("Entities", "%s", strings.Join(answer.Analysis.Entities, ", "))
	}
	if h := answer.Analysis.TemporalHint; h != nil {
		printStatus("Period", "%s", h)
	}

	for _, r := range answer.Results {
		label := string(r.Status)
		if r.CacheHit {
			label += ", cached"
		}
		fmt.Printf("\n%s [%s]\n", colorize(colorBold, r.SourceName), label)
		if r.Detail != "" {
			fmt.Printf("  %s\n", r.Detail)
		}
		if len(r.Payload) > 0 {
			payload := string(r.Payload)
			if len(payload) > 500 {
				payload = payload[:500] + "..."
			}
			fmt.Printf("  %s\n", payload)
		}
	}

	fmt.Println()
	printStatus("Quality", "%.2f", answer.Evaluation.QualityScore)
	if answer.Evaluation.Guidance != "" {
		printStep("%s", answer.Evaluation.Guidance)
	}
}

func init() {
	askCmd.Flags().String("from", "", "start date (YYYY-MM-DD)")
	askCmd.Flags().String("to", "", "end date (YYYY-MM-DD)")
	askCmd.Flags().Bool("json", false, "print the full answer as JSON")
}

// --- sources ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the upstream source catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		probe, _ := cmd.Flags().GetBool("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if probe {
			resp, err := client.get(cmd.Context(), "/sources/status")
			if err != nil {
				return err
			}
			var statuses []struct {
				Name   string `json:"name"`
				Status string `json:"status"`
				Error  string `json:"error,omitempty"`
			}
			if err := decodeJSON(resp, &statuses); err != nil {
				return err
			}
			for _, s := range statuses {
				if s.Status == "ok" {
					printSuccess("%s", s.Name)
				} else {
					printError("%s: %s", s.Name, s.Error)
				}
			}
			return nil
		}

		resp, err := client.get(cmd.Context(), "/sources")
		if err != nil {
			return err
		}
		var entries []struct {
			Name         string   `json:"name"`
			Description  string   `json:"description"`
			Capabilities []string `json:"capabilities"`
			Coverage     string   `json:"coverage,omitempty"`
			Reliability  int      `json:"reliability_tier"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		for _, e := range entries {
			fmt.Printf("%s  (tier %d)\n", colorize(colorBold, e.Name), e.Reliability)
			fmt.Printf("  %s\n", e.Description)
			fmt.Printf("  Serves: %s\n", strings.Join(e.Capabilities, ", "))
			if e.Coverage != "" {
				fmt.Printf("  Coverage: %s\n", e.Coverage)
			}
		}
		return nil
	},
}

func init() {
	sourcesCmd.Flags().Bool("status", false, "probe source reachability instead of listing the catalog")
}

// --- queries ---

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "List recent queries from the log",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/queries?limit=%d", limit))
		if err != nil {
			return err
		}

		var records []struct {
			ID           string  `json:"id"`
			CreatedAt    string  `json:"created_at"`
			QueryText    string  `json:"query_text"`
			Intent       string  `json:"intent"`
			QualityScore float64 `json:"quality_score"`
		}
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No queries logged yet.")
			return nil
		}

		for _, rec := range records {
			text := rec.QueryText
			if len(text) > 60 {
				text = text[:60] + "..."
			}
			fmt.Printf("%s  %s  %-20s  %.2f  %s\n",
				colorize(colorCyan, rec.ID[:8]),
				rec.CreatedAt,
				rec.Intent,
				rec.QualityScore,
				text,
			)
		}
		return nil
	},
}

func init() {
	queriesCmd.Flags().Int("limit", 10, "maximum number of queries to list")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
