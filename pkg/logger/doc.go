// Package logger builds slog loggers for the gateway: JSON or text output,
// environment presets, and a handler decorator that copies request-scoped
// values (request ID, user ID) from the context onto every record.
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "quotagate"),
//	    logger.WithContextExtractors(requestid.LoggerExtractor(), gate.LogExtractor()),
//	)
//	log.InfoContext(ctx, "usage recorded",
//	    logger.UserID(userID),
//	    logger.UsageType("file_processed"),
//	    logger.Amount(3),
//	)
//
// Attribute helpers return an empty slog.Attr for nil or empty values, which
// slog drops from the output.
package logger
