package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	injectUser    string
	injectFeature string
	injectMetrics string
)

var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Inject a synthetic anomalous event, bypassing the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		if injectUser != "" {
			body["userId"] = injectUser
		}
		if injectFeature != "" {
			body["feature"] = injectFeature
		}
		if injectMetrics != "" {
			var metrics map[string]any
			if err := json.Unmarshal([]byte(injectMetrics), &metrics); err != nil {
				return fmt.Errorf("--metrics must be a JSON object: %w", err)
			}
			body["metrics"] = metrics
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}

		resp, err := http.Post(httpURL+"/test-anomaly", "application/json", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("injecting event: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("inject request returned %s", resp.Status)
		}

		var out map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("Injected event (session %s). %s\n", out["sessionId"], out["checkStats"])
		return nil
	},
}

func init() {
	injectCmd.Flags().StringVar(&injectUser, "user", "", "userId for the injected event")
	injectCmd.Flags().StringVar(&injectFeature, "feature", "", "feature for the injected event")
	injectCmd.Flags().StringVar(&injectMetrics, "metrics", "", "metrics JSON object overriding the anomalous defaults")
}
