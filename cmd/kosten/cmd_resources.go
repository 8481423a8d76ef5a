package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/finopskit/kosten/types"
)

var (
	resourcesConnection string
	resourcesProvider   string
	resourcesKind       string
	resourcesStatus     string
	resourcesTags       []string
	resourcesDeleted    bool
	resourcesOutput     string
)

// resourcesCmd represents the resources command
var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Query the synced resource inventory",
	Long: `List resources from the local inventory without touching provider
APIs. Filters combine with AND semantics; tag filters match the merged
tag view (provider tags plus human annotations).`,
	Example: `  kosten resources                           # All live resources
  kosten resources --connection prod-aws     # One connection
  kosten resources --kind compute --status active
  kosten resources --tag team=platform --tag env=prod
  kosten resources --deleted                 # Include tombstones`,
	RunE: runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)

	resourcesCmd.Flags().StringVar(&resourcesConnection, "connection", "", "Filter by connection id")
	resourcesCmd.Flags().StringVar(&resourcesProvider, "provider", "", "Filter by provider")
	resourcesCmd.Flags().StringVarP(&resourcesKind, "kind", "k", "", "Filter by kind (compute, storage, network, database, other)")
	resourcesCmd.Flags().StringVarP(&resourcesStatus, "status", "s", "", "Filter by status (active, stopped, terminated, unknown)")
	resourcesCmd.Flags().StringArrayVarP(&resourcesTags, "tag", "t", nil, "Filter by tag (key=value, repeatable)")
	resourcesCmd.Flags().BoolVar(&resourcesDeleted, "deleted", false, "Include tombstoned resources")
	resourcesCmd.Flags().StringVarP(&resourcesOutput, "output", "o", "table", "Output format: table, json")
}

func runResources(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	filter := types.ResourceFilter{
		ConnectionID:   resourcesConnection,
		Provider:       resourcesProvider,
		Kind:           types.ResourceKind(resourcesKind),
		Status:         types.ResourceStatus(resourcesStatus),
		IncludeDeleted: resourcesDeleted,
	}
	if len(resourcesTags) > 0 {
		filter.Tags = make(map[string]string, len(resourcesTags))
		for _, pair := range resourcesTags {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("invalid tag filter %q, expected key=value", pair)
			}
			filter.Tags[key] = value
		}
	}

	resources, err := a.store.ListResources(filter)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}

	if resourcesOutput == "json" {
		return json.NewEncoder(os.Stdout).Encode(resources)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCONNECTION\tPROVIDER\tKIND\tSTATUS\tREGION\tNAME\tLAST SEEN")
	for _, res := range resources {
		name := res.Name
		if res.IsDeleted() {
			name += " (deleted)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			res.ID, res.ConnectionID, res.Provider, res.Kind, res.Status,
			res.Region, name, res.LastSeenAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
