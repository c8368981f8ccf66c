package fuse

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/example/ntfsbridge/pkg/client"
)

// MountOptions contains options for mounting the filesystem.
type MountOptions struct {
	MountPoint string
	ServerAddr string // bridge server address
	Device     string // volume device path on the server
	Debug      bool
}

// Mount connects to the bridge server, opens the volume and serves it at
// the mount point until SIGINT or SIGTERM.
func Mount(options MountOptions) error {
	config := client.DefaultConfig()
	config.ServerAddress = options.ServerAddr

	log.Printf("Connecting to bridge server at %s", options.ServerAddr)
	c, err := client.NewClient(config)
	if err != nil {
		return fmt.Errorf("failed to connect to bridge server: %w", err)
	}

	root, err := c.OpenVolume(context.Background(), options.Device)
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to open volume %s: %w", options.Device, err)
	}

	mountOpts := []fuse.MountOption{
		fuse.FSName("ntfs-bridge"),
		fuse.Subtype("ntfsbridge"),
		fuse.ReadOnly(),
	}
	if options.Debug {
		fuse.Debug = func(msg interface{}) {
			fmt.Printf("FUSE: %v\n", msg)
		}
	}

	log.Printf("Mounting FUSE filesystem at %s", options.MountPoint)
	conn, err := fuse.Mount(options.MountPoint, mountOpts...)
	if err != nil {
		c.CloseHandle(context.Background(), root)
		c.Close()
		return fmt.Errorf("failed to mount: %w", err)
	}
	defer conn.Close()

	bfs := NewBridgeFS(c, root)
	go func() {
		if err := fs.Serve(conn, bfs); err != nil {
			log.Printf("Error serving filesystem: %v", err)
		}
	}()

	// Give the mount a moment to settle before reporting success
	time.Sleep(1 * time.Second)
	log.Println("FUSE filesystem mounted, press Ctrl+C to unmount")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Unmounting filesystem...")
	if err := Unmount(options.MountPoint); err != nil {
		log.Printf("Warning: failed to unmount cleanly: %v", err)
	}
	c.CloseHandle(context.Background(), root)
	c.Close()
	return nil
}

// Unmount unmounts the filesystem.
func Unmount(mountPoint string) error {
	return fuse.Unmount(mountPoint)
}
