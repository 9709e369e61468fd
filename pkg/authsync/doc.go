/*
Package authsync mirrors the authentication directory.

A pass exports users page by page from the source project and
bulk-imports them into the target with the source's password-hash
parameters attached, so credentials survive the move. Custom claims are
propagated in a follow-up pass since bulk import does not carry them.

Incremental passes only consider users created or signed in after the
last clean pass; the auth watermark moves only when a pass finishes
without errors, so rejected records are retried next time.
*/
package authsync
