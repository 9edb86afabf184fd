// Package rarfs exposes the members of RAR archives as read-only files.
//
// Members are addressed as "archive::member", optionally followed by a
// query with extraction flags and a cache directory:
//
//	/media/show.part01.rar::season1/ep01.mkv?flags=stream
//
// How a member is served depends on how it is stored:
//   - Stored members are read straight from the volume files.
//   - Compressed members are extracted to a cache directory by the
//     [cache.Manager] and read from there, or, with the stream flag,
//     decompressed progressively by a [stream.Session].
//
// Archive listings are held by an [index.Store] and, when a snapshot
// directory is configured, persisted across restarts.
//
// # Quick Start
//
//	fsys, err := rarfs.New(rarfs.WithCacheDir("/var/cache/rarfs"))
//	if err != nil {
//	    return err
//	}
//	f, err := fsys.Open("/media/show.rar::ep01.mkv")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
// [FS.Archive] returns an [io/fs.FS] view of a single archive for use with
// the standard library.
package rarfs
