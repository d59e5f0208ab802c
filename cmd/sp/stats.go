package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fenlow/streampulse/internal/ui"
)

type statsPayload struct {
	ProcessedCount      int64              `json:"processedCount"`
	DecodeErrorCount    int64              `json:"decodeErrorCount"`
	AnomalyCount        int64              `json:"anomalyCount"`
	TotalReceived       int64              `json:"totalReceived"`
	SuccessRate         float64            `json:"successRate"`
	FeatureEngagement   map[string]float64 `json:"featureEngagementScores"`
	FeatureAnomalyTally map[string]int     `json:"featureAnomalyTallies"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine counters and feature aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(httpURL + "/stats")
		if err != nil {
			return fmt.Errorf("fetching stats: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("stats request returned %s", resp.Status)
		}

		var stats statsPayload
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return fmt.Errorf("decoding stats: %w", err)
		}

		if jsonOutput {
			data, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Println(ui.Colorize(ui.Bold, "Streampulse Stats"))
		fmt.Printf("  Processed:     %d\n", stats.ProcessedCount)
		fmt.Printf("  Decode errors: %d\n", stats.DecodeErrorCount)
		fmt.Printf("  Anomalies:     %d\n", stats.AnomalyCount)
		fmt.Printf("  Received:      %d\n", stats.TotalReceived)
		fmt.Printf("  Success rate:  %.2f%%\n", stats.SuccessRate*100)

		if len(stats.FeatureEngagement) > 0 {
			fmt.Println()
			fmt.Println(ui.Colorize(ui.Bold, "Features"))
			features := make([]string, 0, len(stats.FeatureEngagement))
			for f := range stats.FeatureEngagement {
				features = append(features, f)
			}
			sort.Strings(features)
			for _, f := range features {
				score := stats.FeatureEngagement[f]
				line := fmt.Sprintf("  %-24s score %6.2f  anomalies %d", f, score, stats.FeatureAnomalyTally[f])
				switch {
				case score < 30:
					line = ui.Colorize(ui.Red, line)
				case score < 60:
					line = ui.Colorize(ui.Yellow, line)
				default:
					line = ui.Colorize(ui.Green, line)
				}
				fmt.Fprintln(os.Stdout, line)
			}
		}
		return nil
	},
}
