package cmd

import (
	"os"
	"os/signal"

	"github.com/jacobsa/fuse"
)

func registerSIGINTHandlerMount(mountPoint string) {
	// Register for SIGINT.
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	// Start a goroutine that will unmount when the signal is received.
	go func() {
		for {
			<-signalChan
			infoLogger.Println("Received SIGINT, attempting to unmount...")

			if err := fuse.Unmount(mountPoint); err != nil {
				infoLogger.Printf("Failed to unmount in response to SIGINT: %v", err)
			} else {
				infoLogger.Printf("Successfully unmounted in response to SIGINT.")
				return
			}
		}
	}()
}
