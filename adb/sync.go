package adb

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/go-adbhost/adbhost/wire"
)

// openSync dials a device transport and switches it into sync mode. The
// returned cleanup closes the connection and must always be called.
func (d *Device) openSync(ctx context.Context) (net.Conn, func(), error) {
	conn, err := d.Endpoint.Dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	stop := watchContext(ctx, conn)
	cleanup := func() {
		stop()
		conn.Close()
	}

	if err := d.requestTransport(conn); err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := writeHostRequest(conn, "sync:"); err != nil {
		cleanup()
		return nil, nil, err
	}
	if _, err := wire.ReadResponse(conn, false, false); err != nil {
		cleanup()
		return nil, nil, err
	}
	return conn, cleanup, nil
}

// readSyncFail consumes a FAIL frame's message and returns it as an error.
func readSyncFail(r io.Reader) error {
	n, err := wire.ReadSyncUint32(r)
	if err != nil {
		return err
	}
	msg, err := wire.ReadSyncMessage(r, n)
	if err != nil {
		return err
	}
	if !utf8.Valid(msg) {
		return &wire.ProtocolError{Message: "adb error was not utf-8"}
	}
	return &wire.ProtocolError{Message: string(msg)}
}

// Stat queries the metadata of a single remote path.
func (d *Device) Stat(ctx context.Context, remotePath string) (meta FileMetadata, err error) {
	entry := d.oplog.Start("Stat", logrus.Fields{"path": remotePath})
	defer func() { entry.SetError(err).Finish() }()

	conn, cleanup, err := d.openSync(ctx)
	if err != nil {
		return FileMetadata{}, err
	}
	defer cleanup()

	if err := wire.WriteSyncPathRequest(conn, wire.SyncIDStat, remotePath); err != nil {
		return FileMetadata{}, err
	}

	id, err := wire.ReadSyncID(conn)
	if err != nil {
		return FileMetadata{}, err
	}
	if id != wire.SyncIDStat {
		return FileMetadata{}, &wire.ProtocolError{Message: fmt.Sprintf("Invalid response code: %q", id.String())}
	}

	payload, err := wire.ReadStatPayload(conn)
	if err != nil {
		return FileMetadata{}, err
	}

	// Mode 0 is the sync protocol's "not found" sentinel.
	if payload.Mode == 0 {
		return FileMetadata{}, &wire.ProtocolError{Message: "adb: stat failed: No such file or directory"}
	}

	mode, err := wire.ParseStatFileType(payload.Mode)
	if err != nil {
		return FileMetadata{}, &wire.ProtocolError{Message: err.Error()}
	}

	var modified time.Time
	if payload.Mtime != 0 {
		modified = time.Unix(int64(payload.Mtime), 0)
	}

	return FileMetadata{
		Path:         remotePath,
		Mode:         mode,
		Size:         payload.Size,
		ModifiedTime: modified,
		Depth:        -1,
	}, nil
}

// ListDirFlat lists the immediate entries of src, tagging each with depth
// and prefixing its path with prefix. The . and .. entries are skipped; an
// entry outside the directory/file/symlink set aborts the listing.
func (d *Device) ListDirFlat(ctx context.Context, src string, depth int, prefix string) ([]FileMetadata, error) {
	conn, cleanup, err := d.openSync(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := wire.WriteSyncPathRequest(conn, wire.SyncIDList, src); err != nil {
		return nil, err
	}

	var listings []FileMetadata
	for {
		id, err := wire.ReadSyncID(conn)
		if err != nil {
			return nil, err
		}

		switch id {
		case wire.SyncIDDent:
			header, err := wire.ReadDentHeader(conn)
			if err != nil {
				return nil, err
			}
			nameBytes, err := wire.ReadSyncMessage(conn, header.NameLength)
			if err != nil {
				return nil, err
			}
			if !utf8.Valid(nameBytes) {
				return nil, &wire.ProtocolError{Message: "adb error was not utf-8"}
			}
			name := string(nameBytes)
			if name == "." || name == ".." {
				continue
			}
			if prefix != "" {
				name = prefix + "/" + name
			}

			mode, ok := wire.ParseDentFileType(header.Mode)
			if !ok {
				return nil, &wire.ProtocolError{Message: fmt.Sprintf("Invalid file mode %d", (header.Mode>>13)&0b111)}
			}
			size := header.Size
			if mode != wire.FileTypeRegularFile {
				size = 0
			}

			listings = append(listings, FileMetadata{
				Path:         name,
				Mode:         mode,
				Size:         size,
				ModifiedTime: time.Unix(int64(header.Mtime), 0),
				Depth:        depth,
			})

		case wire.SyncIDDone:
			return listings, nil

		case wire.SyncIDFail:
			return nil, readSyncFail(conn)

		default:
			return nil, &wire.ProtocolError{Message: "FAIL (unknown)"}
		}
	}
}

// ListDir walks src depth-first and returns every entry below it, paths
// relative to src and depths counted from 0 at src's immediate children.
func (d *Device) ListDir(ctx context.Context, src string) (listings []FileMetadata, err error) {
	entry := d.oplog.Start("ListDir", logrus.Fields{"path": src})
	defer func() { entry.SetError(err).Finish() }()

	type walkItem struct {
		path   string
		depth  int
		prefix string
	}
	queue := []walkItem{{src, 0, ""}}

	for len(queue) > 0 {
		item := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		entries, err := d.ListDirFlat(ctx, item.path, item.depth, item.prefix)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Mode == wire.FileTypeDirectory {
				queue = append(queue, walkItem{path.Join(src, e.Path), item.depth + 1, e.Path})
			}
			listings = append(listings, e)
		}
	}
	return listings, nil
}
