package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rdfsearch/internal/dataset"
	"github.com/Aman-CERP/rdfsearch/internal/output"
	"github.com/Aman-CERP/rdfsearch/internal/plan"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	property string
	snippets bool
	limit    int
	format   string // "text", "json"
}

// searchResult is one row of search output.
type searchResult struct {
	Subject  string  `json:"subject"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet,omitempty"`
	Distance float64 `json:"distance,omitempty"`
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over indexed literals",
		Long: `Search indexed literals with a bleve query string and print the matching
subjects with their scores.

Without --property every indexed predicate is searched. Prefixed names
such as geo:asWKT are expanded with the built-in prefixes.`,
		Example: `  rdfsearch search alice
  rdfsearch search "tower~1" --property http://example.org/name --snippets
  rdfsearch search paris --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.property, "property", "p", "", "Restrict the search to one predicate")
	cmd.Flags().BoolVar(&opts.snippets, "snippets", false, "Show highlighted snippets")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results (0 for all)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

// textSearchPlan builds
//
//	SELECT ?s ?score ?snippet WHERE {
//	  ?s search:matches ?m . ?m search:query q ; search:score ?score [; search:property p] [; search:snippet ?snippet]
//	}
func textSearchPlan(query string, property rdf.IRI, snippets bool) *plan.Plan {
	p := plan.New()
	m := plan.NewVar("m")
	ids := []plan.NodeID{
		p.StatementPattern(plan.NewVar("s"), plan.Const(rdf.SearchMatches), m, nil),
		p.StatementPattern(m, plan.Const(rdf.SearchQuery), plan.Const(rdf.NewLiteral(query)), nil),
		p.StatementPattern(m, plan.Const(rdf.SearchScore), plan.NewVar("score"), nil),
	}
	names := []string{"s", "score"}
	if property != "" {
		ids = append(ids, p.StatementPattern(m, plan.Const(rdf.SearchProperty), plan.Const(property), nil))
	}
	if snippets {
		ids = append(ids, p.StatementPattern(m, plan.Const(rdf.SearchSnippet), plan.NewVar("snippet"), nil))
		names = append(names, "snippet")
	}
	p.Projection(p.Join(ids...), names...)
	return p
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	var property rdf.IRI
	if opts.property != "" {
		iri, err := dataset.ExpandIRI(opts.property)
		if err != nil {
			return err
		}
		property = iri
	}

	s, err := openSail(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	slog.Info("search_started", slog.String("query", query), slog.String("property", string(property)))
	rows, err := s.Evaluate(ctx, textSearchPlan(query, property, opts.snippets), nil)
	if err != nil {
		return err
	}

	results := make([]searchResult, 0, rows.Len())
	for _, row := range rows.Rows {
		r := searchResult{Subject: display(row["s"]), Snippet: display(row["snippet"])}
		if lit, ok := row["score"].(*rdf.Literal); ok {
			r.Score, _ = lit.Float()
		}
		results = append(results, r)
	}
	slices.SortStableFunc(results, func(a, b searchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.Subject, b.Subject)
	})
	if opts.limit > 0 && len(results) > opts.limit {
		results = results[:opts.limit]
	}
	slog.Info("search_complete", slog.Int("results", len(results)))

	return printResults(cmd, results, opts.format, opts.snippets, false)
}

// printResults writes results as a table or as JSON.
func printResults(cmd *cobra.Command, results []searchResult, format string, snippets, distance bool) error {
	if format == "json" {
		return printJSON(cmd, results)
	}

	out := output.New(cmd.OutOrStdout())
	if len(results) == 0 {
		out.Warning("No results")
		return nil
	}

	header := []string{"SUBJECT"}
	if distance {
		header = append(header, "DISTANCE (m)")
	} else {
		header = append(header, "SCORE")
	}
	if snippets {
		header = append(header, "SNIPPET")
	}
	table := make([][]string, 0, len(results))
	for _, r := range results {
		row := []string{r.Subject}
		if distance {
			row = append(row, strconv.FormatFloat(r.Distance, 'f', 1, 64))
		} else {
			row = append(row, strconv.FormatFloat(r.Score, 'f', 3, 64))
		}
		if snippets {
			row = append(row, r.Snippet)
		}
		table = append(table, row)
	}
	out.Table(header, table)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
