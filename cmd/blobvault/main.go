package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "blobvault",
		Short: "Encrypted blob storage service",
		Long: `Blobvault stores and retrieves short text blobs, encrypting them
through a managed key service and persisting ciphertext in object storage.

Commands:
  blobvault serve          Run the HTTP blob service`,
	}

	rootCmd.AddCommand(newServeCmd())

	return rootCmd.ExecuteContext(context.Background())
}
