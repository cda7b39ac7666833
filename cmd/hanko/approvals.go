package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/harunnryd/hanko/internal/formatter"
	"github.com/harunnryd/hanko/internal/store"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Inspect and resolve approval contracts",
}

var approvalsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List approval contracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		contracts, err := store.ReadContracts(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to read approval store: %w", err)
		}

		pendingOnly, _ := cmd.Flags().GetBool("pending")
		if pendingOnly {
			filtered := contracts[:0]
			for _, c := range contracts {
				if !c.IsTerminal() {
					filtered = append(filtered, c)
				}
			}
			contracts = filtered
		}

		fmt.Println(formatter.NewTableFormatter().FormatApprovals(contracts))
		return nil
	},
}

var approvalsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one approval contract in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contracts, err := store.ReadContracts(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to read approval store: %w", err)
		}

		for _, c := range contracts {
			if c.ApprovalID == args[0] {
				fmt.Println(formatter.NewTableFormatter().FormatApproval(c))
				return nil
			}
		}
		return fmt.Errorf("approval %s not found", args[0])
	},
}

var approvalsResolveCmd = &cobra.Command{
	Use:   "resolve [id]",
	Short: "Submit an operator decision for a pending approval",
	Long:  `Sends the decision to the running daemon through the same endpoint notification channels use, so validation and audit apply identically.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		approve, _ := cmd.Flags().GetBool("approve")
		reject, _ := cmd.Flags().GetBool("reject")
		comment, _ := cmd.Flags().GetString("comment")
		by, _ := cmd.Flags().GetString("by")

		if approve == reject {
			return fmt.Errorf("exactly one of --approve or --reject is required")
		}
		if by == "" {
			return fmt.Errorf("--by is required")
		}

		decision := "approved"
		if reject {
			decision = "rejected"
		}

		payload, err := json.Marshal(map[string]string{
			"decision":    decision,
			"approved_by": by,
			"comment":     comment,
		})
		if err != nil {
			return err
		}

		url := strings.TrimRight(cfg.Server.PublicBaseURL, "/") + "/api/v1/approvals/" + args[0] + "/decision"
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to reach daemon at %s: %w", url, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("daemon rejected decision: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}

		fmt.Println(strings.TrimSpace(string(body)))
		return nil
	},
}

var approvalsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		contracts, err := store.ReadContracts(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to read approval store: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		var data []byte
		switch format {
		case "yaml":
			// Round-trip through JSON so YAML output carries the same
			// field names as the store document and the HTTP API.
			var generic []map[string]any
			data, err = json.Marshal(contracts)
			if err == nil {
				err = json.Unmarshal(data, &generic)
			}
			if err == nil {
				data, err = yaml.Marshal(generic)
			}
		case "json":
			data, err = json.MarshalIndent(contracts, "", "  ")
		default:
			return fmt.Errorf("unsupported format %q (yaml or json)", format)
		}
		if err != nil {
			return fmt.Errorf("failed to encode audit trail: %w", err)
		}

		if output == "" {
			fmt.Print(string(data))
			return nil
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		fmt.Printf("Exported %d contract(s) to %s\n", len(contracts), output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(approvalsCmd)
	approvalsCmd.AddCommand(approvalsLsCmd)
	approvalsCmd.AddCommand(approvalsShowCmd)
	approvalsCmd.AddCommand(approvalsResolveCmd)
	approvalsCmd.AddCommand(approvalsExportCmd)

	approvalsLsCmd.Flags().Bool("pending", false, "Only list contracts still awaiting a decision")

	approvalsResolveCmd.Flags().Bool("approve", false, "Approve the task")
	approvalsResolveCmd.Flags().Bool("reject", false, "Reject the task")
	approvalsResolveCmd.Flags().String("by", "", "Approver principal (e.g. email)")
	approvalsResolveCmd.Flags().String("comment", "", "Decision comment (required for rejection to validate)")

	approvalsExportCmd.Flags().String("format", "yaml", "Export format: yaml or json")
	approvalsExportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
}
