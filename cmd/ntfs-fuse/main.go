package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/example/ntfsbridge/pkg/fuse"
)

func main() {
	mountPoint := pflag.String("mount", "", "Mount point for the bridged volume")
	serverAddr := pflag.String("server", "localhost:7045", "Bridge server address")
	device := pflag.String("device", "", "Device path of the volume to mount")
	debug := pflag.Bool("debug", false, "Enable debug logging")
	pflag.Parse()

	if *mountPoint == "" || *device == "" {
		fmt.Println("Error: --mount and --device are required")
		pflag.Usage()
		os.Exit(1)
	}

	// Ensure the mount point exists
	if _, err := os.Stat(*mountPoint); os.IsNotExist(err) {
		log.Printf("Creating mount point: %s", *mountPoint)
		if err := os.MkdirAll(*mountPoint, 0755); err != nil {
			log.Fatalf("Failed to create mount point: %v", err)
		}
	}

	options := fuse.MountOptions{
		MountPoint: *mountPoint,
		ServerAddr: *serverAddr,
		Device:     *device,
		Debug:      *debug,
	}

	if err := fuse.Mount(options); err != nil {
		log.Fatalf("Mount failed: %v", err)
	}
}
