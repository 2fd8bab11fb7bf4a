package adb

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/sirupsen/logrus"

	"github.com/go-adbhost/adbhost/wire"
)

const (
	pushChunkSize = 32 * 1024

	// Intermediate progress is reported once at least this many new bytes
	// have been sent since the last report.
	pushProgressInterval = 4 * 1024 * 1024
)

// Push streams r to the remote path dest with the given POSIX mode. When
// dest lies in the session's run-as package's private data directory, the
// bytes are staged in the session's staging path and copied into place
// with run-as; the indirection is invisible to the caller.
func (d *Device) Push(ctx context.Context, r io.Reader, dest string, mode uint32) (err error) {
	entry := d.oplog.Start("Push", logrus.Fields{"dest": dest})
	defer func() { entry.SetError(err).Finish() }()
	return d.push(ctx, r, dest, mode, 0, nil)
}

// PushWithProgress streams r to dest, reporting file progress on the given
// channel. totalBytes is the caller's knowledge of r's length, used only
// for progress records.
func (d *Device) PushWithProgress(ctx context.Context, r io.Reader, dest string, mode uint32, totalBytes int64, progress chan<- FileProgress) (err error) {
	entry := d.oplog.Start("Push", logrus.Fields{"dest": dest})
	defer func() { entry.SetError(err).Finish() }()
	return d.push(ctx, r, dest, mode, totalBytes, progress)
}

func (d *Device) push(ctx context.Context, r io.Reader, dest string, mode uint32, total int64, progress chan<- FileProgress) error {
	sendFileProgress(progress, FileProgress{TotalBytes: total})

	enableRunAs := d.EnableRunAsForPath(dest)
	target := dest
	if enableRunAs {
		target = d.StagingPath
	}

	if err := d.prepareAncestors(ctx, dest, enableRunAs); err != nil {
		return err
	}

	conn, cleanup, err := d.openSync(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := wire.WriteSyncSendHeader(conn, target, mode); err != nil {
		return err
	}

	buf := make([]byte, pushChunkSize)
	var transferred, lastProgress int64

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if err := wire.WriteSyncData(conn, buf[:n]); err != nil {
				return err
			}
			transferred += int64(n)
			if progress != nil && transferred-lastProgress >= pushProgressInterval {
				sendFileProgress(progress, FileProgress{TotalBytes: total, TransferredBytes: transferred})
				lastProgress = transferred
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	sendFileProgress(progress, FileProgress{TotalBytes: total, TransferredBytes: transferred})

	// The server acknowledges DONE (but not individual DATA frames) with a
	// final sync status.
	mtime := uint32(d.clock.Now().Unix())
	if err := wire.WriteSyncDone(conn, mtime); err != nil {
		return err
	}

	id, err := wire.ReadSyncID(conn)
	if err != nil {
		return err
	}
	switch id {
	case wire.SyncIDOkay:
		if enableRunAs {
			return d.promoteStaged(ctx, target, dest)
		}
		return nil
	case wire.SyncIDFail:
		d.removeStagedBestEffort(ctx, enableRunAs, target)
		return readSyncFail(conn)
	default:
		d.removeStagedBestEffort(ctx, enableRunAs, target)
		return &wire.ProtocolError{Message: "FAIL (unknown)"}
	}
}

// prepareAncestors creates any missing ancestors of dest before the sync
// SEND. Android 9 fails sync-mode directory creation with "secure_mkdirs
// failed: Operation not permitted", and even on working versions the
// implicitly created directories get restrictive permissions, so the
// missing chain is created up front and opened to 777.
func (d *Device) prepareAncestors(ctx context.Context, dest string, enableRunAs bool) error {
	var leaf, root string
	for current := path.Dir(dest); current != "/" && current != "." && current != ""; current = path.Dir(current) {
		exists, err := d.PathExists(ctx, current, enableRunAs)
		if err != nil {
			return err
		}
		if exists {
			break
		}
		if leaf == "" {
			leaf = current
		}
		root = current
	}

	if leaf != "" {
		if err := d.CreateDir(ctx, leaf); err != nil {
			return err
		}
	}
	if root != "" {
		if err := d.Chmod(ctx, root, "777", true); err != nil {
			return err
		}
	}
	return nil
}

// promoteStaged copies the staged push into its real destination under
// run-as, preserving the permissions set by the push, then removes the
// staging tree. Removal failure is warned and swallowed so the copy's
// outcome is preserved.
func (d *Device) promoteStaged(ctx context.Context, staging, dest string) error {
	_, cpErr := d.ShellCommandAs(ctx, fmt.Sprintf("cp -aR %s %s", staging, dest), true)
	if err := d.Remove(ctx, staging); err != nil {
		d.logger.WithField("path", staging).Warn("failed to remove staging path")
	}
	return cpErr
}

func (d *Device) removeStagedBestEffort(ctx context.Context, enableRunAs bool, staging string) {
	if !enableRunAs {
		return
	}
	if err := d.Remove(ctx, staging); err != nil {
		d.logger.WithField("path", staging).Warn("failed to remove staging path")
	}
}
