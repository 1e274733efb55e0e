// Package audit records successful state-changing requests.
//
// The Recorder turns a completed request into an AuditLogEntry and hands it
// to a bounded Queue. Workers persist entries in the background, so the
// response never waits for the write and a failed write never reaches the
// caller. A full queue drops the entry and logs it.
package audit
