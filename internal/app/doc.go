// Package app is folio's composition root.
//
// # Overview
//
// Run wires configuration, logging, the document engines, the session, the
// viewer and the terminal UI, then blocks until the user quits or the
// context is cancelled.
//
// # Startup
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.Load()        Read ~/.config/folio/config.toml
//	       ├─────> logging.Open()       Text log file, gg.SetLogger
//	       ├─────> resolveDocument()    Download http(s) documents
//	       ├─────> session.Open()       Background open and page loading
//	       ├─────> viewer.New()         Layout and render scheduling
//	       ├─────> Export()             Headless PNG, when requested
//	       ├─────> bridge.New()         Events, notices and viewing state
//	       ├─────> Watcher.Start()      Reload when the file changes
//	       └─────> ui.Run()             Start TUI (blocks)
//
// # Threading
//
// Session callbacks, layout passes and render completions are posted to one
// loop.Queue. The UI drains it inside Bubble Tea's update loop; Export
// drains it directly with RunUntil. Nothing else touches the viewer.
//
// # File Watching
//
// The watcher stats the open file at the configured interval (default 2
// seconds). A changed size or modification time posts a forced reload. The
// session refuses a reload while it is busy and the watcher retries on the
// next check. Stat failures back off exponentially up to 30 seconds and
// are counted in the status store, which the header shows once the file
// has been unreadable for two checks.
//
// # Error Handling
//
// Fatal errors (returned from Run):
//   - Invalid configuration
//   - Log file that cannot be created
//   - Remote document download failure
//
// Everything that happens after the session starts is reported through
// session events and shown in the UI instead.
package app
