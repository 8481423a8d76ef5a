package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// tagCmd represents the tag command
var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage human tag annotations on resources",
	Long: `Annotate resources with tags the provider does not know about.

Human tags live beside provider tags and survive every sync: a provider
snapshot can change its own tags but never removes an annotation set
here. On key collision the human value wins in the merged view.`,
}

var tagSetCmd = &cobra.Command{
	Use:     "set <resource-id> <key>=<value>...",
	Short:   "Set human tags on a resource",
	Example: `  kosten tag set 7f3c9a owner=kata team=platform`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runTagSet,
}

var tagRemoveCmd = &cobra.Command{
	Use:     "remove <resource-id> <key>...",
	Short:   "Remove human tags from a resource",
	Example: `  kosten tag remove 7f3c9a owner`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runTagRemove,
}

var tagShowCmd = &cobra.Command{
	Use:   "show <resource-id>",
	Short: "Show the merged tag view for a resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagShow,
}

func init() {
	rootCmd.AddCommand(tagCmd)
	tagCmd.AddCommand(tagSetCmd)
	tagCmd.AddCommand(tagRemoveCmd)
	tagCmd.AddCommand(tagShowCmd)
}

func runTagSet(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resourceID := args[0]
	for _, pair := range args[1:] {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid tag %q, expected key=value", pair)
		}
		if err := a.store.SetHumanTag(resourceID, key, value); err != nil {
			return fmt.Errorf("set tag %s: %w", key, err)
		}
	}
	fmt.Printf("Tagged %s with %d tag(s)\n", resourceID, len(args)-1)
	return nil
}

func runTagRemove(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resourceID := args[0]
	for _, key := range args[1:] {
		if err := a.store.DeleteHumanTag(resourceID, key); err != nil {
			return fmt.Errorf("remove tag %s: %w", key, err)
		}
	}
	fmt.Printf("Removed %d tag(s) from %s\n", len(args)-1, resourceID)
	return nil
}

func runTagShow(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	tags, err := a.store.TagsFor(args[0])
	if err != nil {
		return fmt.Errorf("read tags: %w", err)
	}
	if len(tags) == 0 {
		fmt.Println("No tags")
		return nil
	}

	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("%s=%s\n", key, tags[key])
	}
	return nil
}
