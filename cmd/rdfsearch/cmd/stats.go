package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rdfsearch/internal/output"
	"github.com/Aman-CERP/rdfsearch/internal/telemetry"
)

// StatsOutput is the JSON output format of the stats command.
type StatsOutput struct {
	Statements          int               `json:"statements"`
	Documents           uint64            `json:"documents"`
	OutstandingMonitors int               `json:"outstanding_monitors"`
	Queries             *QueryStatsOutput `json:"queries,omitempty"`
}

// QueryStatsOutput summarizes the query log.
type QueryStatsOutput struct {
	Kinds               []telemetry.KindStat `json:"kinds"`
	LatencyDistribution map[string]int64     `json:"latency_distribution"`
	ZeroResultQueries   []string             `json:"zero_result_queries"`
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store, index and query statistics",
		Long: `Display statement and document counts. When telemetry.query_log is
configured, also show per-kind query counts, the latency distribution and
recent queries that matched nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput, days)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days of query statistics to include")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool, days int) error {
	s, err := openSail(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	st, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	result := StatsOutput{
		Statements:          st.Statements,
		Documents:           st.Documents,
		OutstandingMonitors: st.OutstandingMonitors,
	}
	if ql := s.QueryLog(); ql != nil {
		if result.Queries, err = queryStats(ql, days); err != nil {
			return err
		}
	}

	if jsonOutput {
		return printJSON(cmd, result)
	}
	printStats(output.New(cmd.OutOrStdout()), result)
	return nil
}

func queryStats(ql *telemetry.QueryLog, days int) (*QueryStatsOutput, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	fromDate, toDate := from.Format("2006-01-02"), to.Format("2006-01-02")

	kinds, err := ql.KindCounts(fromDate, toDate)
	if err != nil {
		return nil, err
	}
	latency, err := ql.LatencyCounts(fromDate, toDate)
	if err != nil {
		return nil, err
	}
	zero, err := ql.ZeroResultQueries(10)
	if err != nil {
		return nil, err
	}

	out := &QueryStatsOutput{
		Kinds:               kinds,
		LatencyDistribution: make(map[string]int64, len(latency)),
		ZeroResultQueries:   zero,
	}
	for bucket, n := range latency {
		out.LatencyDistribution[string(bucket)] = n
	}
	return out, nil
}

func printStats(out *output.Writer, st StatsOutput) {
	out.Status("📊", "Store")
	out.KeyValue("Statements", st.Statements)
	out.KeyValue("Documents", st.Documents)
	if st.Queries == nil {
		return
	}

	out.Newline()
	out.Status("🔍", "Queries")
	if len(st.Queries.Kinds) == 0 {
		out.KeyValue("Evaluated", 0)
		return
	}
	for _, k := range st.Queries.Kinds {
		out.KeyValue(k.Kind, k.Count)
	}
	for _, bucket := range []telemetry.LatencyBucket{
		telemetry.BucketP10, telemetry.BucketP50, telemetry.BucketP100, telemetry.BucketP500, telemetry.BucketP1000,
	} {
		if n := st.Queries.LatencyDistribution[string(bucket)]; n > 0 {
			out.KeyValue("latency "+string(bucket), n)
		}
	}
	if len(st.Queries.ZeroResultQueries) > 0 {
		out.Newline()
		out.Status("", "Recent queries without results:")
		for _, q := range st.Queries.ZeroResultQueries {
			out.Status("", "  "+q)
		}
	}
}
