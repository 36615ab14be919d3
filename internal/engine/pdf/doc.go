// Package pdf is the PDF document engine, built on tabula's reader.
//
// tabula's Reader seeks a shared file and caches objects in a plain map, so
// every access goes through Document.mu. Each page builds a display list
// (vector shapes and text runs in page points) once, under that lock, and
// renders from it without locking, which lets tiles rasterize in parallel.
//
// Encrypted files use the standard security handler. Streams and strings
// are decrypted in place in tabula's object cache the first time they are
// read, so decryption happens once per object.
package pdf
