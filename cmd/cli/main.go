package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	rootCmd   = &cobra.Command{
		Use:   "media-fetch",
		Short: "Media-Fetch CLI - download orchestration client",
		Long:  `A command-line client for the media-fetch download orchestration server.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)

	fetchCmd.Flags().String("tier", "", "Quality tier (4K, 1440p, 1080p, 720p, 480p, 360p, audio, best)")
	fetchCmd.Flags().Bool("wait", false, "Poll until the download reaches a terminal state")
	historyCmd.Flags().Int("limit", 20, "Number of records to show")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func postJSON(path string, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	resp, err := http.Post(serverURL+path, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return body, resp.StatusCode, err
}

func getJSON(path string, out any) error {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Start a download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tier, _ := cmd.Flags().GetString("tier")
		wait, _ := cmd.Flags().GetBool("wait")

		payload := map[string]string{"url": args[0]}
		if tier != "" {
			payload["tier"] = tier
		}

		body, status, err := postJSON("/api/v1/downloads", payload)
		if err != nil {
			fatal("Error: %v", err)
		}
		if status != http.StatusAccepted {
			fatal("Error: %s", string(body))
		}

		var result map[string]any
		json.Unmarshal(body, &result)
		id, _ := result["id"].(string)
		fmt.Printf("Download started\nID: %s\n", id)

		if wait {
			waitForDownload(id)
		}
	},
}

func waitForDownload(id string) {
	lastLine := ""
	for {
		var status map[string]any
		if err := getJSON("/api/v1/downloads/"+id, &status); err != nil {
			fatal("Error: %v", err)
		}
		state, _ := status["state"].(string)

		line := "state: " + state
		if progress, ok := status["progress"].(map[string]any); ok {
			if label, ok := progress["stage_label"].(string); ok && label != "" {
				line = label
			}
			if pct, ok := progress["percent"].(float64); ok && pct > 0 {
				line += fmt.Sprintf(" %.1f%%", pct)
			}
			if speed, ok := progress["speed"].(string); ok && speed != "" {
				line += " @ " + speed
			}
		}
		if line != lastLine {
			fmt.Println(line)
			lastLine = line
		}

		switch state {
		case "delivered":
			if artifact, ok := status["artifact"].(map[string]any); ok {
				fmt.Printf("Done: %v\n", artifact["file_path"])
			}
			return
		case "failed":
			fatal("Failed: %v", status["error"])
		}
		time.Sleep(2 * time.Second)
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked downloads",
	Run: func(cmd *cobra.Command, args []string) {
		var downloads []map[string]any
		if err := getJSON("/api/v1/downloads", &downloads); err != nil {
			fatal("Error: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tPLATFORM\tSTATE")
		for _, d := range downloads {
			fmt.Fprintf(w, "%s\t%s\t%v\t%v\n",
				truncate(str(d["id"]), 8),
				truncate(str(d["url"]), 48),
				d["platform"],
				d["state"])
		}
		w.Flush()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show one download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var status map[string]any
		if err := getJSON("/api/v1/downloads/"+args[0], &status); err != nil {
			fatal("Error: %v", err)
		}
		pretty, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(pretty))
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel an in-flight download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body, status, err := postJSON("/api/v1/downloads/"+args[0]+"/cancel", struct{}{})
		if err != nil {
			fatal("Error: %v", err)
		}
		if status != http.StatusOK {
			fatal("Error: %s", string(body))
		}
		fmt.Println("Cancelling", args[0])
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [url]",
	Short: "Probe a link for available formats",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body, status, err := postJSON("/api/v1/analyze", map[string]string{"url": args[0]})
		if err != nil {
			fatal("Error: %v", err)
		}
		if status != http.StatusOK {
			fatal("Error: %s", string(body))
		}

		var result struct {
			Platform string `json:"platform"`
			Metadata struct {
				Title    string `json:"title"`
				Uploader string `json:"uploader"`
				Duration int    `json:"duration"`
			} `json:"metadata"`
			Formats []struct {
				FormatID  string `json:"format_id"`
				Height    int    `json:"height"`
				Ext       string `json:"ext"`
				SizeBytes int64  `json:"size_bytes"`
				HasAudio  bool   `json:"has_audio"`
			} `json:"formats"`
		}
		json.Unmarshal(body, &result)

		fmt.Printf("Platform: %s\nTitle: %s\nUploader: %s\nDuration: %ds\n\n",
			result.Platform, result.Metadata.Title, result.Metadata.Uploader, result.Metadata.Duration)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FORMAT\tHEIGHT\tEXT\tSIZE\tAUDIO")
		for _, f := range result.Formats {
			size := ""
			if f.SizeBytes > 0 {
				size = humanize.Bytes(uint64(f.SizeBytes))
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%v\n", f.FormatID, f.Height, f.Ext, size, f.HasAudio)
		}
		w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent terminal records",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		var records []map[string]any
		if err := getJSON(fmt.Sprintf("/api/v1/history?limit=%d", limit), &records); err != nil {
			fatal("Error: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tOUTCOME\tSTRATEGY\tSIZE")
		for _, r := range records {
			size := ""
			if n, ok := r["size_bytes"].(float64); ok && n > 0 {
				size = humanize.Bytes(uint64(n))
			}
			fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%s\n",
				truncate(str(r["id"]), 8),
				truncate(str(r["url"]), 48),
				r["outcome"],
				r["strategy"],
				size)
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate outcome counts",
	Run: func(cmd *cobra.Command, args []string) {
		var stats map[string]any
		if err := getJSON("/api/v1/history/stats", &stats); err != nil {
			fatal("Error: %v", err)
		}
		pretty, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(pretty))
	},
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
