package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shannn1/echolab-final/config"
	"github.com/shannn1/echolab-final/storage"

	"github.com/spf13/cobra"
)

var storagePrefix string

var storageCmd = &cobra.Command{
	Use:   "storage-check",
	Short: "Check MinIO connectivity and bucket contents",
	Long:  `Connect to the configured MinIO server and print object counts and sizes, optionally filtered by prefix.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := storage.NewStore(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := store.EnsureBucket(ctx); err != nil {
			log.Fatalf("Bucket check failed: %v", err)
		}

		stats, err := store.Stats(ctx, storagePrefix)
		if err != nil {
			log.Fatalf("Failed to collect bucket stats: %v", err)
		}

		fmt.Printf("Objects: %d\n", stats.TotalObjects)
		fmt.Printf("Total size: %.2f MB\n", float64(stats.TotalSize)/(1024*1024))
		if !stats.LastModified.IsZero() {
			fmt.Printf("Last modified: %s\n", stats.LastModified.Format(time.RFC3339))
		}
	},
}

func init() {
	rootCmd.AddCommand(storageCmd)

	storageCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "", "only count objects under this prefix")

	storageCmd.Example = `  # Check the whole bucket
  echolab storage-check

  # Only the generated audio
  echolab storage-check -p "generated/"`
}
