package adb

// FileProgress reports the state of a single file transfer.
type FileProgress struct {
	TotalBytes       int64
	TransferredBytes int64
}

// DirProgress reports the aggregate state of a directory transfer. The
// first record of a transfer names the directory; subsequent records name
// the file currently being transferred or carry fan-in updates from it.
type DirProgress struct {
	DirectoryName       string
	TotalFiles          int
	TransferredFiles    int
	TotalBytes          int64
	TransferredBytes    int64
	CurrentFile         string
	CurrentFileProgress FileProgress
}

// Progress sends never block and never abort a transfer: a full or absent
// receiver just misses the record.

func sendFileProgress(ch chan<- FileProgress, p FileProgress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}

func sendDirProgress(ch chan<- DirProgress, p DirProgress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}

func sendFraction(ch chan<- float32, f float32) {
	if ch == nil {
		return
	}
	select {
	case ch <- f:
	default:
	}
}
