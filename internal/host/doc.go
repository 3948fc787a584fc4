// Package host is the reference host: it answers every guest request of
// the wire protocol over a slot storage, a journal and a world fixture.
//
// One Session serves one guest connection. Storage writes and emitted
// messages are buffered in the session and committed only when the guest
// reports a Return outcome. Leader nondet results and validator votes are
// journaled immediately so that validators of the same transaction can
// fetch them.
//
// Sandboxes requested with SPAWN_SANDBOX run as child sessions over an
// in-memory pipe, with a guest Runner on the other end. The parent request
// blocks until the child connection is closed.
package host
