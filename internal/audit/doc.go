// Package audit records a journal of pipeline runs.
//
// Each completed operation (download, convert, author, cleanup)
// appends one JSON Lines entry to audit.jsonl in the configured log
// directory. The journal answers "what did the pipeline do, when, and
// how much" without having to scroll console output.
//
// Journaling is strictly best-effort: a nil *Log records nothing, and
// write failures are swallowed. An operation never fails because its
// journal entry could not be written.
//
//	journal := audit.Open(settings.LogDir)
//	journal.Record(audit.Entry{
//		Operation:  "author",
//		PlaylistID: playlistID,
//		Count:      len(chapters),
//	})
package audit
