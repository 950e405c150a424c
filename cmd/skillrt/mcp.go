package main

import (
	"fmt"
	"strings"

	"github.com/jingkaihe/skillrt/pkg/presenter"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Inspect configured MCP servers",
	Long:  `Commands for the MCP servers configured under mcp.servers. Their tools are exposed as mcp_<server>_<tool> skills.`,
}

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available MCP tools",
	Long: `List all available MCP tools from configured servers.

This command shows which MCP tools are accessible based on your configuration.
Use --verbose to see parameters and --json for machine-readable output.`,
	RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *skillruntime.Runtime) error {
		ctx := cmd.Context()
		if rt.MCP == nil {
			presenter.Info("No MCP servers configured")
			return nil
		}

		serverFilter, _ := cmd.Flags().GetString("server")
		verbose, _ := cmd.Flags().GetBool("verbose")

		tools, err := rt.MCP.ListRemoteTools(ctx)
		if err != nil {
			presenter.Warning(fmt.Sprintf("some MCP servers could not be listed: %v", err))
		}
		if serverFilter != "" {
			filtered := tools[:0:0]
			for _, t := range tools {
				if t.Server == serverFilter {
					filtered = append(filtered, t)
				}
			}
			tools = filtered
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			data := make([]map[string]any, len(tools))
			for i, t := range tools {
				data[i] = map[string]any{
					"server":      t.Server,
					"name":        t.Name,
					"description": t.Description,
				}
				if verbose {
					data[i]["parameters"] = t.Parameters
				}
			}
			return printJSON(data)
		}

		if len(tools) == 0 {
			presenter.Info("No MCP tools available")
			return nil
		}

		rows := make([][]string, 0, len(tools))
		for _, t := range tools {
			row := []string{t.Server, t.Name, truncate(t.Description, 60)}
			if verbose {
				names := make([]string, len(t.Parameters))
				for i, p := range t.Parameters {
					names[i] = p.Name + ":" + string(p.Type)
				}
				row = append(row, strings.Join(names, ", "))
			}
			rows = append(rows, row)
		}
		headers := []string{"SERVER", "TOOL", "DESCRIPTION"}
		if verbose {
			headers = append(headers, "PARAMETERS")
		}
		presenter.Table(headers, rows)
		presenter.Success(fmt.Sprintf("%d tools across %d servers", len(tools), len(rt.MCP.Servers())))
		return nil
	}),
}

func init() {
	mcpListCmd.Flags().String("server", "", "Only list tools of this server")
	mcpListCmd.Flags().BoolP("verbose", "v", false, "Show tool parameters")
	mcpListCmd.Flags().Bool("json", false, "Output in JSON format")

	mcpCmd.AddCommand(mcpListCmd)
}

