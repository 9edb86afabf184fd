// Package rar provides the production collaborators behind rarfs: a header
// walker that lists RAR3 and RAR5 archives without decompressing them, a
// bulk extractor and stream source backed by github.com/nwaples/rardecode/v2,
// and a range reader for stored members.
//
// The header walker only reads block headers. It records where each
// member's packed bytes live in each volume, which is enough to serve
// stored members directly and to resume decompression at a member header
// in non-solid single-volume archives.
package rar
