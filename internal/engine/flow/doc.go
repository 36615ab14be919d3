// Package flow is the engine for reflowable documents: Markdown, plain text,
// DOCX, ODT, HTML and EPUB.
//
// Every source is reduced to a list of blocks (headings, paragraphs, list
// items, code, quotes and rules). Blocks are wrapped into lines by display
// cell width and paginated into pages of the reflow box. Reflow repeats the
// pagination for a new box into a new document, so the page count depends
// on the box.
package flow
