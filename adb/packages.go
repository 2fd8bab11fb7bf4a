package adb

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/go-adbhost/adbhost/wire"
)

// IsAppInstalled reports whether the package manager knows pkg.
func (d *Device) IsAppInstalled(ctx context.Context, pkg string) (bool, error) {
	out, err := d.ShellCommand(ctx, "pm path "+pkg)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "package:"), nil
}

// ClearAppData clears pkg's data and reports whether the package manager
// acknowledged.
func (d *Device) ClearAppData(ctx context.Context, pkg string) (bool, error) {
	out, err := d.ShellCommand(ctx, "pm clear "+pkg)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "Success"), nil
}

// ForceStop kills every process of pkg.
func (d *Device) ForceStop(ctx context.Context, pkg string) error {
	d.logger.WithField("package", pkg).Debug("force stopping package")
	_, err := d.ShellCommand(ctx, "am force-stop "+pkg)
	return err
}

// launchCommand builds the am start invocation, quoting each extra
// argument for the device shell.
func launchCommand(pkg, activity string, args []string) string {
	cmd := fmt.Sprintf("am start -W -n %s/%s", pkg, activity)
	for _, arg := range args {
		cmd += " "
		if unsafeShellChars.MatchString(arg) {
			cmd += `"` + escapeShellArg(arg) + `"`
		} else {
			cmd += escapeShellArg(arg)
		}
	}
	return cmd
}

// Launch starts the given activity and reports whether am completed the
// launch.
func (d *Device) Launch(ctx context.Context, pkg, activity string, args []string) (bool, error) {
	out, err := d.ShellCommand(ctx, launchCommand(pkg, activity, args))
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "Complete"), nil
}

// UninstallPackage removes pkg. Any output not starting with Success is a
// PackageManagerError.
func (d *Device) UninstallPackage(ctx context.Context, pkg string) error {
	out, err := d.ShellCommand(ctx, "pm uninstall "+pkg)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(out, "Success") {
		return &PackageManagerError{Output: out}
	}
	return nil
}

// ListPackages returns the installed package names, sorted. With
// thirdPartyOnly, system packages are excluded.
func (d *Device) ListPackages(ctx context.Context, thirdPartyOnly bool) ([]string, error) {
	cmd := "pm list packages"
	if thirdPartyOnly {
		cmd = "pm list packages -3"
	}
	out, err := d.ShellCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var packages []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "package:") {
			continue
		}
		packages = append(packages, strings.TrimPrefix(line, "package:"))
	}
	sort.Strings(packages)
	return packages, nil
}

// InstallPackage pushes the apk to /data/local/tmp and installs it through
// the package manager. The temporary apk is removed afterwards.
func (d *Device) InstallPackage(ctx context.Context, apkPath string, reinstall, grantPermissions bool) (err error) {
	entry := d.oplog.Start("InstallPackage", logrus.Fields{"apk": apkPath})
	defer func() { entry.SetError(err).Finish() }()
	return d.installPackage(ctx, apkPath, reinstall, grantPermissions, nil)
}

// InstallPackageWithProgress installs the apk, reporting completion
// fractions in [0, 1] on progress: the push accounts for the first 0.9,
// the package manager step for the rest.
func (d *Device) InstallPackageWithProgress(ctx context.Context, apkPath string, reinstall, grantPermissions bool, progress chan<- float32) (err error) {
	entry := d.oplog.Start("InstallPackage", logrus.Fields{"apk": apkPath})
	defer func() { entry.SetError(err).Finish() }()
	return d.installPackage(ctx, apkPath, reinstall, grantPermissions, progress)
}

func (d *Device) installPackage(ctx context.Context, apkPath string, reinstall, grantPermissions bool, progress chan<- float32) error {
	base := filepath.Base(apkPath)
	if base == "." || base == string(filepath.Separator) {
		return &wire.ProtocolError{Message: "Invalid apk path"}
	}
	tmpApkPath := "/data/local/tmp/" + base

	f, err := os.Open(apkPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if progress == nil {
		if err := d.Push(ctx, bufio.NewReader(f), tmpApkPath, 0o644); err != nil {
			return err
		}
	} else {
		info, err := f.Stat()
		if err != nil {
			return err
		}
		size := info.Size()

		fileCh := make(chan FileProgress, 16)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for p := range fileCh {
				// The push accounts for the first 90% of the install.
				sendFraction(progress, 0.9*float32(p.TransferredBytes)/float32(size))
			}
		}()

		pushErr := d.PushWithProgress(ctx, bufio.NewReader(f), tmpApkPath, 0o644, size, fileCh)
		close(fileCh)
		<-done
		if pushErr != nil {
			return pushErr
		}
		sendFraction(progress, 0.9)
	}

	cmd := "pm install"
	if reinstall {
		cmd += " -r"
	}
	if grantPermissions {
		cmd += " -g"
	}
	cmd += " " + tmpApkPath
	out, err := d.ShellCommand(ctx, cmd)
	if err != nil {
		return err
	}

	if _, err := d.ShellCommand(ctx, "rm "+tmpApkPath); err != nil {
		return err
	}

	if !strings.HasPrefix(out, "Success") {
		return &PackageManagerError{Output: out}
	}
	sendFraction(progress, 1.0)
	return nil
}
