// Package index caches RAR archive listings.
//
// A Store lists each archive once through a Lister and then answers
// membership, metadata and directory queries from memory. It also owns the
// FileInfo records the disk cache uses to track extracted members, so that
// both kinds of state sit behind one lock.
//
// Member paths are normalized to forward slashes and NFC UTF-8 before they
// are stored. Directories are recognized from host attribute bits, and
// directory listings synthesize intermediate directories that the archive
// does not store explicitly.
package index
