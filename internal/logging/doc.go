// Package logging provides the two logging layers of afkcode.
//
// [Logger] wraps log/slog with a JSON handler for the structured debug log.
// Child loggers carry persistent context:
//
//	logger, err := logging.NewLogger("afkcode.debug.log", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	wlog := logger.WithRun(runID).WithWorker(2)
//	wlog.Info("checked out items", "count", 3)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"checked out items","run_id":"run-...","worker":2,"count":3}
//
// The file is written through a [RotatingWriter], which rolls it over to
// numbered backups (path.1 is newest) once it passes MaxSizeMB.
//
// [Sink] is the human-readable transcript of a loop: the progress lines
// and raw tool output an operator watches. [Transcript] appends it to a
// plain-text file and echoes it to the console; [Discard] drops it.
//
// All types in this package are safe for concurrent use.
package logging
