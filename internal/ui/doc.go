// Package ui provides the terminal front end for folio.
//
// # Architecture Overview
//
// The UI is a Bubble Tea program. Every call into the viewer and the
// document session happens inside Update: closures posted to the
// interactive loop.Queue arrive as taskMsg values and run there, and
// session events arrive through the bridge as bridge.EventMsg.
//
// # Package Structure
//
//   - app.go: Model, message types, Update and Run
//   - view.go: body composition, the page list and the outline panel
//   - header.go: status bar and footer
//   - frame.go: converts the viewer's RGBA frame into half block cells
//   - input_handlers.go: keyboard handling and the footer prompt
//   - mouse.go: wheel scrolling, ctrl+wheel pinch and clicks
//   - logs.go: the log overlay
//   - keys.go, help.go, theme.go: bindings, help modal and colors
//
// # Geometry
//
// One terminal cell shows two viewport pixels stacked vertically, so a
// frame of c×r cells is backed by a c×2r pixel viewport. Clicks map to the
// lower pixel of their cell.
//
// # Key Bindings
//
//   - j/k/h/l: Scroll
//   - space/b: Page down/up
//   - J/K, g/G: Next/previous page, first/last page
//   - +/-, w: Zoom, fit width
//   - ]/[: Text size in reflowable documents
//   - /, n/N: Search and step through matches
//   - o, p: Outline, page list
//   - L: Log overlay (f cycles the level)
//   - r, a: Reload, apply pending redactions
//   - T: Cycle theme
//   - q or Ctrl+C: Save the position and exit
package ui
