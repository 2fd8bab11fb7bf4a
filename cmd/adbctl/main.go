// adbctl is a small command-line frontend over the adb client library,
// covering device enumeration, shell execution, file transfer, port
// forwarding, and package installation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/trace"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/go-adbhost/adbhost/adb"
	"github.com/go-adbhost/adbhost/internal/clidebug"
	"github.com/go-adbhost/adbhost/wire"
)

var (
	app = kingpin.New("adbctl", "Client for the ADB host server.")

	serverHost = app.Flag("host", "Host the adb server listens on.").Default(adb.DefaultHost).String()
	serverPort = app.Flag("port", "Port the adb server listens on.").Default("5037").Int()
	serial     = app.Flag("serial", "Device serial. Defaults to ANDROID_SERIAL, then to the sole online device.").Short('s').String()
	storage    = app.Flag("storage", "Storage location: auto, app, internal, or sdcard.").Default("auto").String()
	verbose    = app.Flag("verbose", "Log debug output.").Short('v').Bool()
	debugAddr  = app.Flag("debug", "Serve pprof/trace diagnostics on a random localhost port.").Bool()

	versionCmd = app.Command("version", "Print the server's version.")
	devicesCmd = app.Command("devices", "List connected devices.")
	trackCmd   = app.Command("track", "Stream device connection events until interrupted.")

	shellCmd = app.Command("shell", "Run a shell command on the device.")
	shellArg = shellCmd.Arg("command", "Command line to run.").Required().String()

	pushCmd    = app.Command("push", "Push a local file or directory to the device.")
	pushLocal  = pushCmd.Arg("local", "Local source path.").Required().ExistingFileOrDir()
	pushRemote = pushCmd.Arg("remote", "Remote destination path.").Required().String()
	pushMode   = pushCmd.Flag("mode", "POSIX mode for pushed files, octal.").Default("0644").String()

	pullCmd    = app.Command("pull", "Pull a remote file or directory from the device.")
	pullRemote = pullCmd.Arg("remote", "Remote source path.").Required().String()
	pullLocal  = pullCmd.Arg("local", "Local destination path.").Required().String()

	forwardCmd    = app.Command("forward", "Forward a host TCP port to the device.")
	forwardLocal  = forwardCmd.Arg("local", "Host port; 0 lets the server allocate one.").Required().Int()
	forwardRemote = forwardCmd.Arg("remote", "Device port.").Required().Int()

	installCmd = app.Command("install", "Install an apk on the device.")
	installApk = installCmd.Arg("apk", "Path to the apk.").Required().ExistingFile()
	reinstall  = installCmd.Flag("reinstall", "Reinstall, keeping app data.").Short('r').Bool()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	log := logrus.StandardLogger()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	// The trace pages only ever bind localhost; let them render without
	// auth the way the debug server expects.
	trace.AuthRequest = func(req *http.Request) (any, sensitive bool) {
		return true, true
	}
	if *debugAddr {
		if _, err := clidebug.Start(log); err != nil {
			log.WithError(err).Warn("could not start debug server")
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	client := adb.NewHostClientWithLogger(adb.Endpoint{Host: *serverHost, Port: *serverPort}, log)
	defer client.Close()

	if err := run(ctx, command, client, log); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, command string, client *adb.HostClient, log *logrus.Logger) error {
	switch command {
	case versionCmd.FullCommand():
		version, err := client.HostVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Println(version)
		return nil

	case devicesCmd.FullCommand():
		infos, err := client.Devices(ctx)
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Printf("%s\t%s\n", info.Serial, info.State)
		}
		return nil

	case trackCmd.FullCommand():
		events, err := client.TrackDevices(ctx)
		if err != nil {
			return err
		}
		for event := range events {
			if event.Err != nil {
				return event.Err
			}
			fmt.Printf("%s\t%s\n", event.Device.Serial, event.Device.State)
		}
		return nil
	}

	storageInput, err := adb.ParseStorageInput(*storage)
	if err != nil {
		return err
	}
	device, err := client.DeviceOrDefault(ctx, *serial, storageInput)
	if err != nil {
		return err
	}
	defer device.Close()

	switch command {
	case shellCmd.FullCommand():
		out, err := device.ShellCommand(ctx, *shellArg)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil

	case pushCmd.FullCommand():
		return push(ctx, device)

	case pullCmd.FullCommand():
		return pull(ctx, device)

	case forwardCmd.FullCommand():
		port, err := device.ForwardPort(ctx, *forwardLocal, *forwardRemote)
		if err != nil {
			return err
		}
		fmt.Println(port)
		return nil

	case installCmd.FullCommand():
		return device.InstallPackage(ctx, *installApk, *reinstall, false)
	}
	return nil
}

func push(ctx context.Context, device *adb.Device) error {
	var mode uint32
	if _, err := fmt.Sscanf(*pushMode, "%o", &mode); err != nil {
		return fmt.Errorf("invalid mode %q: %w", *pushMode, err)
	}

	info, err := os.Stat(*pushLocal)
	if err != nil {
		return err
	}
	if info.IsDir() {
		progress := make(chan adb.DirProgress, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			reportDirProgress(progress)
		}()
		err := device.PushDirWithProgress(ctx, *pushLocal, *pushRemote, mode, progress)
		close(progress)
		<-done
		return err
	}

	f, err := os.Open(*pushLocal)
	if err != nil {
		return err
	}
	defer f.Close()
	return device.Push(ctx, f, *pushRemote, mode)
}

func pull(ctx context.Context, device *adb.Device) error {
	meta, err := device.Stat(ctx, *pullRemote)
	if err != nil {
		return err
	}
	if meta.Mode == wire.FileTypeDirectory {
		progress := make(chan adb.DirProgress, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			reportDirProgress(progress)
		}()
		err := device.PullDirWithProgress(ctx, *pullRemote, *pullLocal, progress)
		close(progress)
		<-done
		return err
	}

	f, err := os.Create(*pullLocal)
	if err != nil {
		return err
	}
	defer f.Close()
	return device.Pull(ctx, *pullRemote, f)
}

func reportDirProgress(progress <-chan adb.DirProgress) {
	for p := range progress {
		if p.DirectoryName != "" {
			fmt.Fprintf(os.Stderr, "%s: %d files, %d bytes\n", p.DirectoryName, p.TotalFiles, p.TotalBytes)
			continue
		}
		if p.CurrentFile != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", p.CurrentFile)
			continue
		}
		fmt.Fprintf(os.Stderr, "  %d/%d bytes\r", p.TransferredBytes, p.TotalBytes)
	}
}
