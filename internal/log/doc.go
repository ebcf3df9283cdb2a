// Package log builds the application's slog loggers.
//
// Every logger is wrapped in a SecureHandler, which masks credentials
// before they are written: cookies, authorization headers, tokens and
// the secret parts of URLs. Crawls are often run with a session cookie
// from a config file, and verbose logs end up pasted into issues.
//
// NewLogger writes text or JSON to stderr and, optionally, JSON to a
// rotated log file managed by lumberjack.
//
//	logger, err := log.NewLogger(log.Options{Verbose: true, File: path})
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//	slog.SetDefault(logger.Logger)
package log
