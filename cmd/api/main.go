package main

import (
	"log"

	"github.com/driftlock/dispatch-proxy/internal/config"
	"github.com/driftlock/dispatch-proxy/pkg/proxy"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	// Load environment files explicitly
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	// Load configuration from YAML
	cfg, err := config.LoadFromFile("config.yaml")
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	// Create proxy with explicit config
	p := proxy.New(cfg)

	// Start the server
	log.Println("Starting DispatchProxy server...")
	if err := p.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
