// Package logtail reads the end of folio's own log file for the in-app log
// overlay.
//
// # Reading
//
// Read extracts the last maxLines of a file with a ring buffer, so memory is
// bounded by the number of lines kept rather than by the file size. Lines
// come back in file order. A missing file is not an error; folio may not
// have logged anything yet.
//
//	lines, err := logtail.Read(cfg.Log.Path, 400)
//
// # Filtering
//
// The log is written by slog's text handler, so every record carries a
// level=LEVEL field. Level parses it, accepting slog's offset forms such as
// DEBUG+2, and Filter drops records below a minimum level. Lines without a
// level field are kept so multi-line output is never cut in half.
package logtail
