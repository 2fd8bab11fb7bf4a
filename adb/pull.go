package adb

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/go-adbhost/adbhost/wire"
)

const (
	pullBufferSize = 64 * 1024

	// Intermediate progress is reported once at least this many new bytes
	// have arrived since the last report.
	pullProgressInterval = 1024 * 1024
)

// Pull copies the remote file src into w.
func (d *Device) Pull(ctx context.Context, src string, w io.Writer) (err error) {
	entry := d.oplog.Start("Pull", logrus.Fields{"src": src})
	defer func() { entry.SetError(err).Finish() }()
	return d.pull(ctx, src, w, 0, nil)
}

// PullWithProgress copies src into w, reporting file progress on the given
// channel. The file is stat'ed first to learn the total size.
func (d *Device) PullWithProgress(ctx context.Context, src string, w io.Writer, progress chan<- FileProgress) (err error) {
	entry := d.oplog.Start("Pull", logrus.Fields{"src": src})
	defer func() { entry.SetError(err).Finish() }()

	meta, err := d.Stat(ctx, src)
	if err != nil {
		return err
	}
	return d.pull(ctx, src, w, int64(meta.Size), progress)
}

func (d *Device) pull(ctx context.Context, src string, w io.Writer, total int64, progress chan<- FileProgress) error {
	sendFileProgress(progress, FileProgress{TotalBytes: total})

	conn, cleanup, err := d.openSync(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := wire.WriteSyncPathRequest(conn, wire.SyncIDRecv, src); err != nil {
		return err
	}

	buf := make([]byte, pullBufferSize)
	var transferred, lastProgress int64

	for {
		id, err := wire.ReadSyncID(conn)
		if err != nil {
			return err
		}

		switch id {
		case wire.SyncIDData:
			n, err := wire.ReadSyncUint32(conn)
			if err != nil {
				return err
			}
			if int(n) > len(buf) {
				buf = make([]byte, n)
			}
			if _, err := io.ReadFull(conn, buf[:n]); err != nil {
				return err
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			transferred += int64(n)
			if progress != nil && transferred-lastProgress >= pullProgressInterval {
				sendFileProgress(progress, FileProgress{TotalBytes: total, TransferredBytes: transferred})
				lastProgress = transferred
			}

		case wire.SyncIDDone:
			sendFileProgress(progress, FileProgress{TotalBytes: total, TransferredBytes: transferred})
			return nil

		case wire.SyncIDFail:
			return readSyncFail(conn)

		default:
			return &wire.ProtocolError{Message: "FAIL (unknown)"}
		}
	}
}
