package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/mspace-dashboard/config"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the campaign scheduler",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <campaign-uuid>",
	Short: "Resume a campaign left in sending, in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var (
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-uuid>",
	Short: "Mint a bearer token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", "user", "Role claim: user or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logOutput := setupLogging(cfg.Logging)
	log.Println("Starting Mspace dashboard...")

	app, err := initializeApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	app.router.SetupRoutes()

	if err := app.startScheduler(logOutput); err != nil {
		app.shutdown()
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		serverErr <- app.router.Start(address)
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
	case err := <-serverErr:
		app.shutdown()
		return fmt.Errorf("server stopped: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	app.shutdown()

	log.Println("Server stopped")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.Logging)

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("Migrations completed successfully")
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	campaignUUID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid campaign uuid: %w", err)
	}

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.Logging)

	app, err := initializeApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	campaign, err := app.campaigns.ByUUID(ctx, campaignUUID)
	if err != nil {
		return err
	}
	if campaign == nil {
		return fmt.Errorf("campaign %s not found", campaignUUID)
	}

	summary, err := app.sender.Resume(ctx, campaign.ID)
	if err != nil {
		return err
	}

	fmt.Printf("campaign %s: status=%s recipients=%d sent=%d delivered=%d failed=%d skipped=%d\n",
		campaignUUID, summary.Status, summary.Recipients, summary.Sent, summary.Delivered, summary.Failed, summary.Skipped)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid user uuid: %w", err)
	}

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	tokens, err := newTokenService(cfg)
	if err != nil {
		return err
	}
	token, err := tokens.GenerateToken(userID, tokenRole, tokenTTL)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
