// Package cache extracts compressed archive members to disk and tracks the
// extracted copies.
//
// A Manager turns a (archive, member) pair into a local file path. Members
// that were already extracted are reused and reference counted through the
// index Store's FileInfo records. New extractions go into numbered
// "rarfolderNNNN" folders under the cache directory so that members with
// the same base name never collide.
//
// Before extracting, the Manager checks free space on the target volume and
// evicts unreferenced auto-delete files, largest first, until the member
// fits. Large extractions can be confirmed, observed and canceled through a
// Confirmer. A declined or canceled extraction is remembered for a short
// window so that a retry storm from the same caller fails fast.
package cache
