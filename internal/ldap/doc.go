// Package ldap provides the pooled directory client used by the account
// administration pipeline.
//
// A channel-backed connection pool dials servers found either from explicit
// LDAP URLs or DNS SRV discovery, authenticating each connection with simple
// bind, Kerberos (GSSAPI), or an external TLS identity. The client layered on
// top exposes the three operations the pipeline needs: single-shot searches,
// paged searches streamed page by page, and the password-policy-state
// extended operation.
//
// Errors are classified into categories with a retryable flag; a failure that
// indicates the connection itself died (server shutdown, network teardown) is
// detected with IsStaleConnection and retried exactly once on a fresh
// connection. User identifiers in DN, GUID, SID, UPN, SAM, or plain user-ID
// form are translated into equality filters with IdentifierFilter.
package ldap
