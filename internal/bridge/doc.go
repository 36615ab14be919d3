// Package bridge connects a document session to its host.
//
// Session events arrive on a subscription channel. In the TUI, Listen turns
// the next event into a bubbletea message and Update calls Apply with it,
// so viewer and session state are only touched from the update loop. The
// headless exporter uses Pump, which posts each event to a loop.Queue
// instead.
//
// Apply feeds the viewer, records progress in the status store and maps
// error codes to notices:
//
//   - aborted operations are silent
//   - PasswordRequired asks for the password prompt
//   - a forced reload that changed the page count falls back to a full
//     reload
//   - fatal errors disable the viewer and stay in the status store
//
// The bridge also owns the persisted viewing state: RestoreState hands the
// saved position to the viewer after opening and SaveState writes it back
// on quit.
package bridge
