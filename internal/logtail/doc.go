// Package logtail reads the end of the tracksync JSON log for the console.
//
// The console cannot print logs to a terminal it owns, so the runtime writes
// JSON lines to a file and the activity pane re-reads the tail on each
// refresh. Read keeps only the last N lines in a ring buffer, so memory use
// is bounded regardless of file size. Lines up to 1 MiB are supported.
package logtail
