package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// BaseURLFunc supplies the HTTP base URL of the node to talk to.
type BaseURLFunc func() string

func getJSON(baseURL BaseURLFunc, path string, out any) error {
	resp, err := http.Get(baseURL() + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewStatsCommand constructs `stats`: queue depth, in-flight, and
// dead-letter rollups per partition.
func NewStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats map[string]any
			if err := getJSON(baseURL, "/v1/queue/stats", &stats); err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

// NewRecoverCommand constructs `recover`: trigger an on-demand lease sweep.
func NewRecoverCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Reclaim expired processing leases now",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Post(baseURL()+"/v1/queue/recover", "application/json", nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
			}
			fmt.Println(strings.TrimSpace(string(body)))
			return nil
		},
	}
}

// NewDLQCommand constructs the `dlq` command group.
func NewDLQCommand(baseURL BaseURLFunc) *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Dead-letter queue operations",
	}
	dlqCmd.AddCommand(newDLQListCommand(baseURL), newDLQDeleteCommand(baseURL))
	return dlqCmd
}

func newDLQListCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			partition, _ := cmd.Flags().GetString("partition")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")

			q := url.Values{}
			if partition != "" {
				q.Set("partition", partition)
			}
			if filter != "" {
				q.Set("filter", filter)
			}
			if limit > 0 {
				q.Set("limit", fmt.Sprintf("%d", limit))
			}
			path := "/v1/queue/dlq"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var out map[string]any
			if err := getJSON(baseURL, path, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().String("partition", "", "Limit to one partition")
	cmd.Flags().String("filter", "", `CEL filter, e.g. 'retry_count >= 3 && reason.contains("timeout")'`)
	cmd.Flags().Int("limit", 0, "Maximum entries to return")
	return cmd
}

func newDLQDeleteCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one dead-lettered message",
		RunE: func(cmd *cobra.Command, args []string) error {
			partition, _ := cmd.Flags().GetString("partition")
			id, _ := cmd.Flags().GetString("id")
			if partition == "" || id == "" {
				return fmt.Errorf("--partition and --id are required")
			}
			req, err := http.NewRequest(http.MethodDelete,
				fmt.Sprintf("%s/v1/queue/dlq/%s/%s", baseURL(), url.PathEscape(partition), url.PathEscape(id)), nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			io.Copy(io.Discard, resp.Body)
			fmt.Println("status:", resp.Status)
			return nil
		},
	}
	cmd.Flags().String("partition", "", "Partition key of the entry")
	cmd.Flags().String("id", "", "Message ID of the entry")
	return cmd
}
