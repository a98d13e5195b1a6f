package telemetry

import (
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterDBTracing adds a span per GORM statement. Query variables are left out
// of spans because they carry counterparty names and amounts.
func RegisterDBTracing(db *gorm.DB, cfg Config, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	plugin := otelgorm.NewPlugin(
		otelgorm.WithDBName("ledgerflow"),
		otelgorm.WithoutQueryVariables(),
	)
	if err := db.Use(plugin); err != nil {
		return fmt.Errorf("failed to register otelgorm plugin: %w", err)
	}
	logger.Info("Database tracing enabled")
	return nil
}
