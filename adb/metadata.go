package adb

import (
	"time"

	"github.com/go-adbhost/adbhost/wire"
)

// FileMetadata describes a remote file, as returned by Stat and directory
// listings. Paths are POSIX paths on the device side; listing results are
// relative to the listed root.
type FileMetadata struct {
	Path string
	Mode wire.FileType

	// Size of the entry in bytes. Directories and symlinks in listings
	// report 0.
	Size uint32

	// ModifiedTime is the entry's mtime. Stat leaves it as the zero time
	// when the device reports an mtime of 0; listings always convert the
	// reported value, so an mtime of 0 there is the Unix epoch.
	ModifiedTime time.Time

	// Depth of the entry below the walk root. Populated by directory
	// listings only; Stat results carry -1.
	Depth int
}
