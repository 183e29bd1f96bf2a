package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry-mcp/internal/searcher"
)

var (
	flagLimit         int
	flagOffset        int
	flagMinScore      float64
	flagRelationships bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagScope == "" {
			return fmt.Errorf("--scope is required for search")
		}
		query := strings.Join(args, " ")

		b, err := openBackend()
		if err != nil {
			return err
		}
		defer b.Close()

		resp, err := b.searcher.Search(cmd.Context(), searcher.SearchRequest{
			Query:                query,
			Scope:                flagScope,
			Limit:                flagLimit,
			Offset:               flagOffset,
			MinScore:             flagMinScore,
			IncludeRelationships: flagRelationships,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%d results (strategy %s, %s)\n\n",
			resp.TotalFound, resp.StrategyUsed, resp.Duration.Round(time.Millisecond))

		for i, r := range resp.Results {
			fmt.Printf("%2d. %s  %s:%d  [%s]  score %.3f\n",
				flagOffset+i+1, r.Name, r.FilePath, r.LineNumber, r.Kind, r.CombinedScore)
			if r.Relationships != nil {
				if len(r.Relationships.UsedBy) > 0 {
					fmt.Printf("    used by:    %s\n", strings.Join(r.Relationships.UsedBy, ", "))
				}
				if len(r.Relationships.DependsOn) > 0 {
					fmt.Printf("    depends on: %s\n", strings.Join(r.Relationships.DependsOn, ", "))
				}
			}
		}

		if resp.HasMore {
			fmt.Printf("\nMore results available (use --offset %d)\n", flagOffset+flagLimit)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&flagLimit, "limit", 10, "maximum results per page")
	searchCmd.Flags().IntVar(&flagOffset, "offset", 0, "ranked results to skip")
	searchCmd.Flags().Float64Var(&flagMinScore, "min-score", 0, "minimum similarity score")
	searchCmd.Flags().BoolVar(&flagRelationships, "relationships", false, "include used-by and depends-on relationships")
	rootCmd.AddCommand(searchCmd)
}
