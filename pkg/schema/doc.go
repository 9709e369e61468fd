/*
Package schema tracks the observed field paths of each collection.

On every refresh the tracker samples a handful of documents (5 by
default), flattens their payloads into dotted key paths, descending
into nested maps but not into arrays, and diffs against the collection's
known set. New paths are folded in and published as a schemaChange event;
removals are ignored, so sets grow monotonically until an explicit Reset.
*/
package schema
