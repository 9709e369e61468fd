/*
Package replicator moves documents between the two sides.

Both directions run the same loop: stream the source collection ordered
by its normalized updatedAt from the direction's watermark, buffer a
chunk, fetch the same IDs from the target to suppress documents the
target already holds at an equal or newer timestamp, and commit the
survivors in ordered merge batches of at most 450 operations.

The watermark only ever reflects successfully committed batches, so a
failed batch or a crash mid-run causes re-reads on the next pass (which
the duplicate check absorbs), never skipped documents. Documents
lacking a usable timestamp are written but leave the watermark alone.
*/
package replicator
