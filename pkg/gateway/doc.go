/*
Package gateway wraps the backend database and authentication-directory
handles behind thin capability interfaces.

Two interfaces cover everything the engine needs: DB (list collections,
filtered scans, multi-get, merge batch writes capped at 450 operations,
ID listing, probe) and Directory (paginated user export, bulk import with
password-hash parameters, custom-claims writes, probe). The Gateways
struct owns the four handles (primary/standby x db/auth) for the process
lifetime and is passed to every component.

Production implementations sit on the Firestore and Firebase Auth SDKs.
Failures are classified into a small taxonomy (ErrUnavailable for
transport and deadline problems, ErrThrottled for quota, ErrInvalid for
argument shape, ErrNotFound) and transient ones are retried internally
with exponential backoff up to the configured attempt limit. Every outbound call carries a deadline:
30s reads, 60s writes, 120s user imports, 5s probes.

MemoryDB and MemoryDirectory are deterministic in-memory implementations
with fault injection, used throughout the engine's tests.
*/
package gateway
