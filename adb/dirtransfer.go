package adb

import (
	"bufio"
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/go-adbhost/adbhost/pathutil"
	"github.com/go-adbhost/adbhost/wire"
)

// PushDir pushes every regular file under the local directory source to
// destDir on the device, preserving the tree shape. Symlinks are not
// followed.
func (d *Device) PushDir(ctx context.Context, source, destDir string, mode uint32) (err error) {
	entry := d.oplog.Start("PushDir", logrus.Fields{"src": source, "dest": destDir})
	defer func() { entry.SetError(err).Finish() }()
	return d.pushDir(ctx, source, destDir, mode, nil)
}

// PushDirWithProgress pushes the tree while reporting aggregate progress.
// The first record names destDir and carries the pre-walk totals; later
// records advertise the current file and fan in its byte counts.
func (d *Device) PushDirWithProgress(ctx context.Context, source, destDir string, mode uint32, progress chan<- DirProgress) (err error) {
	entry := d.oplog.Start("PushDir", logrus.Fields{"src": source, "dest": destDir})
	defer func() { entry.SetError(err).Finish() }()
	return d.pushDir(ctx, source, destDir, mode, progress)
}

func (d *Device) pushDir(ctx context.Context, source, destDir string, mode uint32, progress chan<- DirProgress) error {
	d.logger.WithFields(logrus.Fields{"src": source, "dest": destDir}).Debug("pushing directory")

	// Walk once for totals before any bytes move.
	var totalFiles int
	var totalBytes int64
	err := filepath.Walk(source, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			totalFiles++
			totalBytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return err
	}

	sendDirProgress(progress, DirProgress{
		DirectoryName: destDir,
		TotalFiles:    totalFiles,
		TotalBytes:    totalBytes,
	})

	var transferredFiles int
	var transferredBytes int64

	return filepath.Walk(source, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		tail, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		dest, err := pathutil.AppendComponents(destDir, tail)
		if err != nil {
			return err
		}
		fileSize := info.Size()

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		fileCh, wait := fanInFileProgress(progress, dirTotals{totalFiles, totalBytes, transferredFiles, transferredBytes})
		sendDirProgress(progress, DirProgress{
			TotalFiles:          totalFiles,
			TransferredFiles:    transferredFiles,
			TotalBytes:          totalBytes,
			TransferredBytes:    transferredBytes,
			CurrentFile:         dest,
			CurrentFileProgress: FileProgress{TotalBytes: fileSize},
		})

		pushErr := d.push(ctx, bufio.NewReader(f), dest, mode, fileSize, fileCh)
		if fileCh != nil {
			close(fileCh)
			wait()
		}
		if pushErr != nil {
			return pushErr
		}

		transferredFiles++
		transferredBytes += fileSize
		return nil
	})
}

// PullDir copies the remote tree src into the local directory destDir.
// Symlinks in the tree are ignored; a special file (device, socket, FIFO)
// anywhere in the tree makes the listing, and so the pull, fail.
func (d *Device) PullDir(ctx context.Context, src, destDir string) (err error) {
	entry := d.oplog.Start("PullDir", logrus.Fields{"src": src, "dest": destDir})
	defer func() { entry.SetError(err).Finish() }()
	return d.pullDir(ctx, src, destDir, nil)
}

// PullDirWithProgress copies the tree while reporting aggregate progress,
// shaped like PushDirWithProgress's records.
func (d *Device) PullDirWithProgress(ctx context.Context, src, destDir string, progress chan<- DirProgress) (err error) {
	entry := d.oplog.Start("PullDir", logrus.Fields{"src": src, "dest": destDir})
	defer func() { entry.SetError(err).Finish() }()
	return d.pullDir(ctx, src, destDir, progress)
}

func (d *Device) pullDir(ctx context.Context, src, destDir string, progress chan<- DirProgress) error {
	// One listing serves both the totals and the iteration, so a remote
	// tree mutating mid-transfer cannot desynchronize the two passes.
	entries, err := d.ListDir(ctx, src)
	if err != nil {
		return err
	}

	var totalFiles int
	var totalBytes int64
	for _, e := range entries {
		if e.Mode == wire.FileTypeRegularFile {
			totalFiles++
			totalBytes += int64(e.Size)
		}
	}

	sendDirProgress(progress, DirProgress{
		DirectoryName: src,
		TotalFiles:    totalFiles,
		TotalBytes:    totalBytes,
	})

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	var transferredFiles int
	var transferredBytes int64

	for _, e := range entries {
		switch e.Mode {
		case wire.FileTypeDirectory:
			if err := os.MkdirAll(filepath.Join(destDir, filepath.FromSlash(e.Path)), 0o755); err != nil {
				return err
			}

		case wire.FileTypeRegularFile:
			remote := path.Join(src, e.Path)
			local := filepath.Join(destDir, filepath.FromSlash(e.Path))
			fileSize := int64(e.Size)

			f, err := os.Create(local)
			if err != nil {
				return err
			}

			fileCh, wait := fanInFileProgress(progress, dirTotals{totalFiles, totalBytes, transferredFiles, transferredBytes})
			sendDirProgress(progress, DirProgress{
				TotalFiles:          totalFiles,
				TransferredFiles:    transferredFiles,
				TotalBytes:          totalBytes,
				TransferredBytes:    transferredBytes,
				CurrentFile:         local,
				CurrentFileProgress: FileProgress{TotalBytes: fileSize},
			})

			pullErr := d.pull(ctx, remote, f, fileSize, fileCh)
			closeErr := f.Close()
			if fileCh != nil {
				close(fileCh)
				wait()
			}
			if pullErr != nil {
				return pullErr
			}
			if closeErr != nil {
				return closeErr
			}

			transferredFiles++
			transferredBytes += fileSize

		default:
			// Symlinks and special files are not transferred.
		}
	}
	return nil
}

type dirTotals struct {
	totalFiles int
	totalBytes int64
	doneFiles  int
	doneBytes  int64
}

// fanInFileProgress re-emits one file's progress stream as directory
// records on top of the bytes already completed before the file started.
// The current file cannot overlap the next one: the orchestrator closes
// the channel and waits before moving on, so the completed counters seen
// here are never stale.
func fanInFileProgress(progress chan<- DirProgress, totals dirTotals) (chan FileProgress, func()) {
	if progress == nil {
		return nil, func() {}
	}
	ch := make(chan FileProgress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range ch {
			sendDirProgress(progress, DirProgress{
				TotalFiles:          totals.totalFiles,
				TransferredFiles:    totals.doneFiles,
				TotalBytes:          totals.totalBytes,
				TransferredBytes:    totals.doneBytes + p.TransferredBytes,
				CurrentFileProgress: p,
			})
		}
	}()
	return ch, func() { <-done }
}
