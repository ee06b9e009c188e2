package logger

import (
	"go-syncbridge/internal/config"
	"go-syncbridge/internal/database"

	"go.uber.org/zap"
)

// NewLogger builds the application logger. Besides the console core it tees
// every entry into the Mongo "logs" collection through an async writer, so
// operators can inspect engine activity without shell access.
func NewLogger(cfg *config.Config, db *database.MongodbDB) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Enable Caller to get the function name into persisted entries.
	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	dbWriter := NewDBLogWriter(db, cfg)
	finalCore := NewDBCore(baseLogger.Core(), dbWriter)

	return zap.New(finalCore, zap.AddCaller()), nil
}
