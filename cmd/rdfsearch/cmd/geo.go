package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rdfsearch/internal/dataset"
	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/geo"
	"github.com/Aman-CERP/rdfsearch/internal/output"
	"github.com/Aman-CERP/rdfsearch/internal/plan"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
	"github.com/Aman-CERP/rdfsearch/internal/search"
)

// geoOptions holds CLI flags shared by near and relate.
type geoOptions struct {
	property string
	distance float64
	unit     string
	function string
	format   string
}

func newNearCmd() *cobra.Command {
	var opts geoOptions

	cmd := &cobra.Command{
		Use:   "near <wkt>",
		Short: "Find geometries within a distance of a point",
		Long: `Find subjects whose geometry lies closer than --distance to the given WKT
point, nearest first. Distances are great-circle distances in metres.`,
		Example: `  rdfsearch near "POINT(2.35 48.85)" --distance 5000
  rdfsearch near "POINT(2.35 48.85)" --distance 3 --unit degree`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNear(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.property, "property", "p", string(rdf.GeoAsWKT), "Geometry predicate")
	cmd.Flags().Float64VarP(&opts.distance, "distance", "d", 0, "Maximum distance (required)")
	cmd.Flags().StringVar(&opts.unit, "unit", "uom:metre", "Distance unit: uom:metre, uom:degree or uom:radian")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("distance")

	return cmd
}

func newRelateCmd() *cobra.Command {
	var opts geoOptions

	cmd := &cobra.Command{
		Use:   "relate <wkt>",
		Short: "Find geometries in a spatial relation with a shape",
		Long: `Find subjects whose geometry satisfies a GeoSPARQL function applied to the
given WKT shape and the stored geometry.

Supported functions: sfIntersects, sfWithin, sfContains, ehCoveredBy, ehCovers.`,
		Example: `  rdfsearch relate "POLYGON((2 48, 3 48, 3 49, 2 49, 2 48))" --function sfContains`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelate(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.property, "property", "p", string(rdf.GeoAsWKT), "Geometry predicate")
	cmd.Flags().StringVar(&opts.function, "function", "sfIntersects", "GeoSPARQL function name or IRI")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

// distancePlan builds
//
//	SELECT ?s ?d WHERE {
//	  ?s prop ?g . BIND(geof:distance(wkt, ?g, unit) AS ?d) FILTER(?d < maxDistance)
//	}
func distancePlan(wkt string, property rdf.IRI, maxDistance float64, unit rdf.IRI) *plan.Plan {
	p := plan.New()
	pat := p.StatementPattern(plan.NewVar("s"), plan.Const(property), plan.NewVar("g"), nil)
	ext := p.Extension(pat, plan.ExtensionElem{
		Name: "d",
		Expr: plan.Call(rdf.GeofDistance, plan.Lit(rdf.NewWKTLiteral(wkt)), plan.Ref("g"), plan.Lit(unit)),
	})
	f := p.Filter(ext, &plan.Compare{Op: plan.OpLT, Left: plan.Ref("d"), Right: plan.Lit(rdf.NewDoubleLiteral(maxDistance))})
	p.Projection(f, "s", "d")
	return p
}

// relationPlan builds SELECT ?s WHERE { ?s prop ?g FILTER(fn(wkt, ?g)) }.
func relationPlan(wkt string, property, function rdf.IRI) *plan.Plan {
	p := plan.New()
	pat := p.StatementPattern(plan.NewVar("s"), plan.Const(property), plan.NewVar("g"), nil)
	f := p.Filter(pat, plan.Call(function, plan.Lit(rdf.NewWKTLiteral(wkt)), plan.Ref("g")))
	p.Projection(f, "s")
	return p
}

func runNear(ctx context.Context, cmd *cobra.Command, wkt string, opts geoOptions) error {
	if opts.distance <= 0 {
		return fmt.Errorf("--distance must be positive")
	}
	if err := checkWKT(wkt); err != nil {
		return err
	}
	property, err := dataset.ExpandIRI(opts.property)
	if err != nil {
		return err
	}
	unit, err := dataset.ExpandIRI(opts.unit)
	if err != nil {
		return err
	}

	s, err := openSail(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	slog.Info("near_started", slog.String("wkt", wkt), slog.Float64("distance", opts.distance))
	rows, err := s.Evaluate(ctx, distancePlan(wkt, property, opts.distance, unit), nil)
	if err != nil {
		return err
	}

	results := make([]searchResult, 0, rows.Len())
	for _, row := range rows.Rows {
		r := searchResult{Subject: display(row["s"])}
		if lit, ok := row["d"].(*rdf.Literal); ok {
			r.Distance, _ = lit.Float()
		}
		results = append(results, r)
	}
	slices.SortStableFunc(results, func(a, b searchResult) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return strings.Compare(a.Subject, b.Subject)
	})
	return printResults(cmd, results, opts.format, false, true)
}

func runRelate(ctx context.Context, cmd *cobra.Command, wkt string, opts geoOptions) error {
	property, err := dataset.ExpandIRI(opts.property)
	if err != nil {
		return err
	}
	function := rdf.IRI(rdf.GeofNamespace + opts.function)
	if strings.Contains(opts.function, ":") {
		if function, err = dataset.ExpandIRI(opts.function); err != nil {
			return err
		}
	}
	if _, ok := search.RelationFor(function); !ok {
		return fmt.Errorf("unsupported function %s", function)
	}
	if err := checkWKT(wkt); err != nil {
		return err
	}

	s, err := openSail(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	rows, err := s.Evaluate(ctx, relationPlan(wkt, property, function), nil)
	if err != nil {
		return err
	}

	results := make([]searchResult, 0, rows.Len())
	for _, row := range rows.Rows {
		results = append(results, searchResult{Subject: display(row["s"])})
	}
	slices.SortFunc(results, func(a, b searchResult) int { return strings.Compare(a.Subject, b.Subject) })
	return printRelated(cmd, results, opts.format)
}

// checkWKT rejects malformed shapes before a search would silently drop them.
func checkWKT(wkt string) error {
	if _, err := (geo.WKTParser{}).Parse(wkt); err != nil {
		return errors.New(errors.ErrCodeMalformedGeometry, fmt.Sprintf("malformed WKT %q", wkt), err)
	}
	return nil
}

func printRelated(cmd *cobra.Command, results []searchResult, format string) error {
	if format == "json" {
		subjects := make([]string, len(results))
		for i, r := range results {
			subjects[i] = r.Subject
		}
		return printJSON(cmd, subjects)
	}
	if len(results) == 0 {
		output.New(cmd.OutOrStdout()).Warning("No results")
		return nil
	}
	for _, r := range results {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), r.Subject); err != nil {
			return err
		}
	}
	return nil
}
