package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/john/gmodrelay/internal/bridge"
	"github.com/john/gmodrelay/internal/buffer"
	"github.com/john/gmodrelay/internal/config"
	"github.com/john/gmodrelay/internal/discord"
	"github.com/john/gmodrelay/internal/gate"
	"github.com/john/gmodrelay/internal/message"
	"github.com/john/gmodrelay/internal/recorder"
	"github.com/john/gmodrelay/internal/status"
	"github.com/john/gmodrelay/internal/steam"
	"github.com/john/gmodrelay/internal/uploader"
)

func main() {
	log.Println("Gmod relay starting...")

	// Get config path from environment variable or use default
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Configuration loaded successfully")
	log.Printf("Relaying channel %s for game server %s", cfg.Discord.ChannelID, cfg.Bridge.TrustedIP)

	// Setup context and signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Shared relay state
	statuses := status.NewStore()
	buf := buffer.New(cfg.Bridge.BufferCap)
	resolver := steam.New(cfg.Steam.APIKey, cfg.Steam.CacheTTL(), cfg.Steam.Timeout())
	connector := discord.New(cfg.Discord.Token, cfg.Discord.ChannelID, statuses)

	// Communication channels
	events := make(chan message.Event, 100)
	entries := make(chan recorder.Entry, 100)
	fileChan := make(chan string, 100)

	// Optional transcript archive pipeline
	var rec *recorder.Recorder
	var up *uploader.Uploader
	var record func(ev message.Event, direction string)
	if cfg.ArchiveEnabled() {
		rec = recorder.New(cfg.Archive.OutputDir, cfg.Archive.RotateMinutes, cfg.Archive.RotateMegabytes)
		up, err = uploader.New(ctx,
			cfg.Archive.S3.Bucket,
			cfg.Archive.S3.Region,
			cfg.Archive.S3.AccessKeyID,
			cfg.Archive.S3.SecretAccessKey,
			cfg.Archive.DeleteAfterUpload,
			cfg.Archive.MaxRetries,
		)
		if err != nil {
			log.Fatalf("Failed to create uploader: %v", err)
		}
		if err := up.ScanAndUploadExisting(ctx, cfg.Archive.OutputDir); err != nil {
			log.Printf("Warning: failed to scan for leftover transcripts: %v", err)
		}

		record = func(ev message.Event, direction string) {
			entry := recorder.Entry{
				Direction: direction,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Username:  ev.Username,
				Content:   ev.Content,
			}
			select {
			case entries <- entry:
			default:
				log.Printf("Warning: transcript queue full, dropping entry from %s", ev.Username)
			}
		}
	}

	bridgeServer := bridge.New(
		fmt.Sprintf(":%d", cfg.Bridge.Port),
		gate.New(cfg.Bridge.TrustedIP),
		buf, resolver, connector, statuses, record,
	)

	// Start all components
	var wg sync.WaitGroup

	// Start Discord connector; a provisioning failure at startup is fatal
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := connector.Start(ctx, events); err != nil && err != context.Canceled {
			log.Printf("Discord connector error: %v", err)
			cancel()
		}
	}()

	// Pump Discord messages into the relay buffer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev := <-events:
				buf.Append(ev)
				if record != nil {
					record(ev, "discord")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Start transcript archive pipeline (if configured)
	if rec != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.Start(ctx, entries, fileChan); err != nil && err != context.Canceled {
				log.Printf("Recorder error: %v", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := up.Start(ctx, fileChan); err != nil && err != context.Canceled {
				log.Printf("Uploader error: %v", err)
			}
		}()
	}

	// Start bridge HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bridgeServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("Bridge server error: %v", err)
			cancel()
		}
	}()

	log.Println("All components started successfully")

	// Wait for shutdown signal
	go func() {
		select {
		case <-sigChan:
			log.Println("Shutdown signal received, initiating graceful shutdown...")
		case <-ctx.Done():
		}

		// Create shutdown context with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Stop bridge server
		if err := bridgeServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down bridge server: %v", err)
		}

		// Cancel main context to stop other components
		cancel()

		// Wait for components to finish with timeout
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Println("All components stopped gracefully")
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing exit")
		}

		os.Exit(0)
	}()

	// Wait for shutdown
	wg.Wait()
	log.Println("Gmod relay stopped")
}
