package cmd

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/rdfsearch/internal/config"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
	"github.com/Aman-CERP/rdfsearch/internal/sail"
)

// openSail opens the project's store and index as configured.
func openSail(ctx context.Context, o ...sail.Option) (*sail.Sail, error) {
	cfg := loadedConfig
	if cfg == nil {
		cfg = config.NewConfig()
	}
	opts, err := cfg.SailOptions(projectDir)
	if err != nil {
		return nil, err
	}
	slog.Debug("sail_opening",
		slog.String("index", opts.IndexPath),
		slog.String("store", opts.StorePath))
	return sail.Open(ctx, opts, append([]sail.Option{sail.WithLogger(slog.Default())}, o...)...)
}

// display renders a bound value for terminal output.
func display(v rdf.Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case *rdf.Literal:
		return t.Label
	default:
		return t.String()
	}
}
