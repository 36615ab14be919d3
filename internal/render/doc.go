// Package render schedules rasterization of the visible pages into a
// rotating set of frame buffers.
//
// A pass takes the next buffer, snapshots the visible pages and rasterizes
// each one on the tile worker pool with its own cookie. Completions come
// back through the interactive queue; when the last one arrives the buffer
// becomes the front buffer. TriggerRender during a pass schedules exactly one
// follow-up pass, so passes never overlap and never share a buffer.
package render
