// Package config loads folio's TOML configuration.
//
// # Configuration Discovery
//
// Load follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/folio/config.toml
//  3. If the file doesn't exist, use the built-in defaults
//  4. If the file exists but fields are missing or zero, keep the defaults
//
// A file that parses but holds unusable values (min_scale above max_scale,
// fewer than two render buffers, tiles smaller than 8 pixels, a malformed
// background color or log level) fails with a "validate config" error.
//
// # Sections
//
//	[view]
//	gap = 4                    # unscaled pixels between pages
//	min_scale = 0.15
//	max_scale = 5.0
//	pixels_per_point = 0.25    # unscaled pixels per page point
//	background = "#1e1e1e"
//
//	[render]
//	buffers = 2                # rotating frame buffers
//	tile_size = 64
//	workers = 0                # 0 means one per CPU
//
//	[reflow]
//	width = 312                # points
//	height = 504
//	em = 10
//
//	[document]
//	form_filling = true        # run document scripts after unlock
//	script_timeout_ms = 2000
//	watch = true               # reload when the file changes
//	watch_seconds = 2
//
//	[log]
//	path = "~/.local/state/folio/folio.log"   # "" disables logging
//	level = "info"
//
//	[state]
//	path = "~/.local/state/folio/state.toml"
//
// # Path Expansion
//
// Paths beginning with ~ are expanded to the user's home directory and made
// absolute.
package config
