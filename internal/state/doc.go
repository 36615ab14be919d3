// Package state shares document status between folio's goroutines.
//
// # Overview
//
// The Store holds the latest load progress, layout summary and errors for
// the open document. The interactive goroutine writes progress and layout
// through the host bridge; the file watcher records whether the open file
// could be checked. The UI header reads a Snapshot on every redraw.
//
//	Bridge / Watcher:              UI:
//	┌──────────────────┐          ┌──────────────────┐
//	│ store.Progress() │          │                  │
//	│ store.Fail()     │─────────→│ store.Snapshot() │
//	│ store.WatchResult│ (mutex)  │      ↓           │
//	└──────────────────┘          │  render header   │
//	                              └──────────────────┘
//
// # Errors
//
// Fatal errors (the document could not be opened) stay in the snapshot
// until the next Open; non-fatal errors such as a failed reload are replaced
// by later ones and cleared with ClearError. Snapshot returns a wrapped copy
// of the stored error so callers cannot mutate it.
//
// # Watch Failures
//
// WatchFailures counts consecutive failed stat calls on the open file.
// IsStale reports two or more in a row, which the header shows as a
// warning that the displayed document may be out of date.
package state
