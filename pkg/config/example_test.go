package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/cartsync/pkg/config"
)

// ExampleDefaultConfig demonstrates creating a configuration with
// default values.
func ExampleDefaultConfig() {
	cfg := config.DefaultConfig()

	// The configuration comes with sensible defaults
	fmt.Printf("Batch Size: %d\n", cfg.Sync.BatchSize)
	fmt.Printf("Chunk Size: %d\n", cfg.Sync.ChunkSize)
	fmt.Printf("Max Retries: %d\n", cfg.Reliability.MaxRetries)

	// Output:
	// Batch Size: 50
	// Chunk Size: 250
	// Max Retries: 3
}

// ExampleConfig_Validate shows how to validate a configuration before
// using it.
func ExampleConfig_Validate() {
	cfg := config.DefaultConfig()
	cfg.API.Endpoint = "https://shop.example.com/admin/api/graphql"
	cfg.Storage.DSN = "postgres://cartsync@localhost/catalog"

	// Modify some values
	cfg.Sync.ChunkSize = 500
	cfg.Reliability.BaseDelayMs = 250
	cfg.Reliability.MaxDelayMs = 8000

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Printf("Base Delay: %s\n", cfg.Reliability.BaseDelay())
	fmt.Printf("Max Delay: %s\n", cfg.Reliability.MaxDelay())

	// Output:
	// Base Delay: 250ms
	// Max Delay: 8s
}
