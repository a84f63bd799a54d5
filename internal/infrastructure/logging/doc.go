// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: sampled JSON output tagged with the service name
//   - Development: Colored console output for human readability
//
// Subsystems get a named child logger so their lines can be filtered:
//
//	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
//	proxyLog := logger.Component("proxy")
//	proxyLog.Info("session opened", zap.String("session_id", sid.String()))
//	proxyLog.Warn("dial failed", zap.Error(err))
package logging
