package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SyncID is one of the closed set of 4-byte ASCII command codes used inside
// a sync: session.
type SyncID [4]byte

func (id SyncID) String() string { return string(id[:]) }

// The sync sub-protocol's command codes. Only the v1 wire forms are
// implemented; this library does not negotiate ls_v2/stat_v2/sendrecv_v2
// feature flags.
var (
	SyncIDStat = SyncID{'S', 'T', 'A', 'T'}
	SyncIDList = SyncID{'L', 'I', 'S', 'T'}
	SyncIDSend = SyncID{'S', 'E', 'N', 'D'}
	SyncIDRecv = SyncID{'R', 'E', 'C', 'V'}
	SyncIDDent = SyncID{'D', 'E', 'N', 'T'}
	SyncIDDone = SyncID{'D', 'O', 'N', 'E'}
	SyncIDData = SyncID{'D', 'A', 'T', 'A'}
	SyncIDOkay = SyncID{'O', 'K', 'A', 'Y'}
	SyncIDFail = SyncID{'F', 'A', 'I', 'L'}
)

// WriteSyncPathRequest writes a sync frame consisting of id, a 4-byte
// little-endian path length, and the path bytes. Used by STAT, LIST, RECV,
// and by SEND with the whole "<path>,<mode>" string as its payload.
func WriteSyncPathRequest(w io.Writer, id SyncID, path string) error {
	buf := make([]byte, 8+len(path))
	copy(buf[0:4], id[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(path)))
	copy(buf[8:], path)
	_, err := w.Write(buf)
	return err
}

// WriteSyncSendHeader writes SEND's request: the path followed by a comma
// and the decimal file mode, framed as a normal sync path request.
func WriteSyncSendHeader(w io.Writer, path string, mode uint32) error {
	return WriteSyncPathRequest(w, SyncIDSend, fmt.Sprintf("%s,%d", path, mode))
}

// WriteSyncData writes one DATA frame.
func WriteSyncData(w io.Writer, chunk []byte) error {
	buf := make([]byte, 8+len(chunk))
	copy(buf[0:4], SyncIDData[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(chunk)))
	copy(buf[8:], chunk)
	_, err := w.Write(buf)
	return err
}

// WriteSyncDone writes client-to-server DONE carrying a 32-bit mtime.
func WriteSyncDone(w io.Writer, mtimeSeconds uint32) error {
	var buf [8]byte
	copy(buf[0:4], SyncIDDone[:])
	binary.LittleEndian.PutUint32(buf[4:8], mtimeSeconds)
	_, err := w.Write(buf[:])
	return err
}

// ReadSyncID reads the 4-byte command code that begins every sync frame.
func ReadSyncID(r io.Reader) (SyncID, error) {
	var id SyncID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return id, fmt.Errorf("wire: reading sync frame id: %w", err)
	}
	return id, nil
}

// ReadSyncUint32 reads a bare 4-byte little-endian integer (a DATA or FAIL
// length field, or the trailing 32-bit field of a STAT/DENT header already
// partially consumed).
func ReadSyncUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("wire: reading sync uint32: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadSyncMessage reads a length-prefixed byte payload (a FAIL message or a
// DENT name), given the already-read 4-byte length.
func ReadSyncMessage(r io.Reader, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("wire: reading sync message of %d bytes: %w", length, err)
	}
	return buf, nil
}

// StatPayload is the 12-byte mode|size|mtime body that follows the STAT
// command code in a STAT response.
type StatPayload struct {
	Mode  uint32
	Size  uint32
	Mtime uint32
}

// ReadStatPayload reads a STAT response body (the 4-byte "STAT" id must
// already have been consumed by the caller).
func ReadStatPayload(r io.Reader) (StatPayload, error) {
	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return StatPayload{}, fmt.Errorf("wire: reading stat payload: %w", err)
	}
	return StatPayload{
		Mode:  binary.LittleEndian.Uint32(buf[0:4]),
		Size:  binary.LittleEndian.Uint32(buf[4:8]),
		Mtime: binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// DentHeader is the fixed-size prefix of a DENT frame; the entry name
// follows as NameLength raw bytes (the 4-byte "DENT" id must already have
// been consumed by the caller).
type DentHeader struct {
	Mode       uint32
	Size       uint32
	Mtime      uint32
	NameLength uint32
}

func ReadDentHeader(r io.Reader) (DentHeader, error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return DentHeader{}, fmt.Errorf("wire: reading dent header: %w", err)
	}
	return DentHeader{
		Mode:       binary.LittleEndian.Uint32(buf[0:4]),
		Size:       binary.LittleEndian.Uint32(buf[4:8]),
		Mtime:      binary.LittleEndian.Uint32(buf[8:12]),
		NameLength: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// FileType is the set of POSIX file types a STAT response can report.
// DENT listings yield only Directory, RegularFile and SymbolicLink (see
// ParseDentFileType).
type FileType int

const (
	FileTypeDirectory FileType = iota
	FileTypeCharacterDevice
	FileTypeBlockDevice
	FileTypeRegularFile
	FileTypeSymbolicLink
	FileTypeSocket
)

func (t FileType) String() string {
	switch t {
	case FileTypeDirectory:
		return "Directory"
	case FileTypeCharacterDevice:
		return "CharacterDevice"
	case FileTypeBlockDevice:
		return "BlockDevice"
	case FileTypeRegularFile:
		return "RegularFile"
	case FileTypeSymbolicLink:
		return "SymbolicLink"
	case FileTypeSocket:
		return "Socket"
	default:
		return "Unknown"
	}
}

// ParseStatFileType maps a STAT mode's top nibble (mode & 0xF000) to a
// FileType. Of the POSIX S_IF* types, FIFO (0x1000) has no FileType and is
// an error, as is any other unlisted value. mode == 0 is the sync
// protocol's "not found" sentinel and is not a valid file type.
func ParseStatFileType(mode uint32) (FileType, error) {
	switch mode & 0xF000 {
	case 0x4000:
		return FileTypeDirectory, nil
	case 0x2000:
		return FileTypeCharacterDevice, nil
	case 0x6000:
		return FileTypeBlockDevice, nil
	case 0x8000:
		return FileTypeRegularFile, nil
	case 0xA000:
		return FileTypeSymbolicLink, nil
	case 0xC000:
		return FileTypeSocket, nil
	default:
		return 0, fmt.Errorf("wire: unrecognized stat mode 0x%X", mode)
	}
}

// ParseDentFileType maps a DENT mode's file_type field ((mode>>13)&0b111)
// to a FileType. Only Directory, RegularFile, and SymbolicLink are valid
// here; any other value means the listing must be aborted.
func ParseDentFileType(mode uint32) (FileType, bool) {
	switch (mode >> 13) & 0b111 {
	case 0b010:
		return FileTypeDirectory, true
	case 0b100:
		return FileTypeRegularFile, true
	case 0b101:
		return FileTypeSymbolicLink, true
	default:
		return 0, false
	}
}
