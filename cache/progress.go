package cache

// ProgressEvent reports extraction progress.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Archive is the archive being extracted from.
	Archive string

	// Member is the member being extracted, or "" for a whole archive.
	Member string

	// BytesDone is the number of uncompressed bytes written so far.
	BytesDone int64

	// BytesTotal is the expected number of bytes.
	// Zero indicates the total is unknown.
	BytesTotal int64
}

// Percent returns the completed percentage, or 0 if the total is unknown.
func (e ProgressEvent) Percent() int {
	if e.BytesTotal <= 0 {
		return 0
	}
	p := e.BytesDone * 100 / e.BytesTotal
	return int(min(max(p, 0), 100))
}

// ProgressStage identifies the current phase of a cache operation.
type ProgressStage uint8

// Progress stages.
const (
	// StageEvicting indicates cached files are being deleted to free space.
	StageEvicting ProgressStage = iota

	// StageExtracting indicates member data is being decompressed to disk.
	StageExtracting

	// StageDone indicates the extraction finished.
	StageDone
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageEvicting:
		return "evicting"
	case StageExtracting:
		return "extracting"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates. Returning false cancels the
// operation. Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent) bool
