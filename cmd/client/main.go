package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/ntfsbridge/pkg/client"
	"github.com/example/ntfsbridge/pkg/efi"
)

func main() {
	serverAddr := pflag.String("server", "localhost:7045", "Bridge server address")
	device := pflag.String("device", "", "Device path of the volume to open")
	operation := pflag.String("op", "ls", "Operation to perform (volumes, ls, cat, stat, write, rm, fsinfo, label)")
	timeout := pflag.Duration("timeout", 30*time.Second, "RPC timeout")
	pflag.Parse()

	config := client.DefaultConfig()
	config.ServerAddress = *serverAddr
	config.Timeout = *timeout

	c, err := client.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *operation == "volumes" {
		listVolumes(ctx, c)
		return
	}

	if *device == "" {
		log.Fatal("--device is required for this operation")
	}
	root, err := c.OpenVolume(ctx, *device)
	if err != nil {
		log.Fatalf("Failed to open volume %q: %v", *device, err)
	}
	defer c.CloseHandle(ctx, root)

	path := pflag.Arg(0)

	switch *operation {
	case "ls":
		runList(ctx, c, root, path)
	case "cat":
		runCat(ctx, c, root, path)
	case "stat":
		runStat(ctx, c, root, path)
	case "write":
		runWrite(ctx, c, root, path)
	case "rm":
		runRemove(ctx, c, root, path)
	case "fsinfo":
		runFsInfo(ctx, c, root)
	case "label":
		runLabel(ctx, c, root, path)
	default:
		log.Fatalf("Unknown operation: %s", *operation)
	}
}

func listVolumes(ctx context.Context, c *client.Client) {
	vols, err := c.ListVolumes(ctx)
	if err != nil {
		log.Fatalf("ListVolumes failed: %v", err)
	}
	for _, v := range vols {
		state := "idle"
		if v.Mounted {
			state = "mounted"
		}
		fmt.Printf("%-20s %-16q %s\n", v.Device, v.Label, state)
	}
}

func openPath(ctx context.Context, c *client.Client, root client.Handle, path string, mode efi.OpenMode) client.Handle {
	if path == "" {
		path = "."
	}
	h, err := c.Open(ctx, root, path, mode, 0)
	if err != nil {
		log.Fatalf("Failed to open %q: %v", path, err)
	}
	return h
}

func runList(ctx context.Context, c *client.Client, root client.Handle, path string) {
	h := openPath(ctx, c, root, path, efi.ModeRead)
	defer c.CloseHandle(ctx, h)

	entries, err := c.ReadDir(ctx, h)
	if err != nil {
		log.Fatalf("Failed to read directory %q: %v", path, err)
	}
	for _, e := range entries {
		kind := "-"
		if e.Attribute&efi.FileDirectory != 0 {
			kind = "d"
		}
		fmt.Printf("%s %10d  %s\n", kind, e.FileSize, e.FileName)
	}
}

func runCat(ctx context.Context, c *client.Client, root client.Handle, path string) {
	h := openPath(ctx, c, root, path, efi.ModeRead)
	defer c.CloseHandle(ctx, h)

	data, err := c.ReadAll(ctx, h)
	if err != nil {
		log.Fatalf("Failed to read %q: %v", path, err)
	}
	os.Stdout.Write(data)
}

func runStat(ctx context.Context, c *client.Client, root client.Handle, path string) {
	h := openPath(ctx, c, root, path, efi.ModeRead)
	defer c.CloseHandle(ctx, h)

	info, err := c.Stat(ctx, h)
	if err != nil {
		log.Fatalf("Failed to stat %q: %v", path, err)
	}
	fmt.Printf("Name:      %s\n", info.FileName)
	fmt.Printf("Size:      %d\n", info.FileSize)
	fmt.Printf("Allocated: %d\n", info.PhysicalSize)
	fmt.Printf("Attribute: %#x\n", info.Attribute)
	fmt.Printf("Modified:  %s\n", info.ModifyTime.Std().Format(time.RFC3339))
}

func runWrite(ctx context.Context, c *client.Client, root client.Handle, path string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("Failed to read stdin: %v", err)
	}

	h := openPath(ctx, c, root, path, efi.ModeRead|efi.ModeWrite|efi.ModeCreate)
	defer c.CloseHandle(ctx, h)

	n, err := c.Write(ctx, h, data)
	if err != nil {
		log.Fatalf("Failed to write %q: %v", path, err)
	}
	fmt.Printf("wrote %d bytes to %s\n", n, path)
}

func runRemove(ctx context.Context, c *client.Client, root client.Handle, path string) {
	h := openPath(ctx, c, root, path, efi.ModeRead|efi.ModeWrite)

	// Delete consumes the handle whether or not it succeeds.
	status, err := c.Delete(ctx, h)
	if err != nil {
		log.Fatalf("Failed to delete %q: %v", path, err)
	}
	if status != efi.Success {
		log.Fatalf("Delete of %q returned %v; handle closed, file kept", path, status)
	}
	fmt.Printf("removed %s\n", path)
}

func runFsInfo(ctx context.Context, c *client.Client, root client.Handle) {
	info, err := c.FileSystemInfo(ctx, root)
	if err != nil {
		log.Fatalf("Failed to get filesystem info: %v", err)
	}
	fmt.Printf("Label:      %q\n", info.Label)
	fmt.Printf("Size:       %d\n", info.VolumeSize)
	fmt.Printf("Free:       %d\n", info.FreeSpace)
	fmt.Printf("Block size: %d\n", info.BlockSize)
	fmt.Printf("Read-only:  %v\n", info.ReadOnly)
}

func runLabel(ctx context.Context, c *client.Client, root client.Handle, newLabel string) {
	if pflag.NArg() == 0 {
		label, err := c.VolumeLabel(ctx, root)
		if err != nil {
			log.Fatalf("Failed to get label: %v", err)
		}
		fmt.Println(label)
		return
	}
	if err := c.SetVolumeLabel(ctx, root, newLabel); err != nil {
		log.Fatalf("Failed to set label: %v", err)
	}
}
