package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"pushdeploy/internal/deployment"
	"pushdeploy/internal/notify"
	"pushdeploy/internal/security"
	"pushdeploy/internal/server"
)

var (
	logFile  string
	logLevel string
	host     string
	port     int
	testMode bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server to receive GitHub webhook requests.

Push events for the configured branch of a project trigger its deployment commands.
The server stops gracefully on SIGINT or SIGTERM, letting running deployments finish.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("PUSHDEPLOY_LOG_FILE", "./deployments.log"), "Path to log file")
	serveCmd.Flags().StringVar(&logLevel, "log-level", getEnvOrDefault("PUSHDEPLOY_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("PUSHDEPLOY_HOST", "127.0.0.1"), "Host to bind to")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("PUSHDEPLOY_PORT", 5000), "Port to listen on")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", os.Getenv("PUSHDEPLOY_TEST_MODE") == "1", "Enable test mode (disables rate limiting)")
}

func runServe(cmd *cobra.Command, args []string) error {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}

	logger, logFileHandle, err := setupLogging(logFile, level)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("starting pushdeploy", "version", version)

	path, registry, err := loadRegistry()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return err
	}

	for _, warning := range registry.Warnings() {
		logger.Warn("configuration warning", "config", path, "warning", warning)
	}
	logger.Info("configuration validated", "config", path, "count", registry.Count(), "projects", registry.List())

	dispatcher := notify.NewDispatcher(logger, notificationSenders())
	deployer := deployment.NewDeployer(logger, dispatcher)
	srv := server.NewServer(registry, deployer, path, logger, testMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, host, port); err != nil {
		logger.Error("server failed", "error", err)
		return err
	}
	return nil
}

// notificationSenders builds the channel senders from the environment.
// Channels without credentials are still registered; they skip with a warning.
func notificationSenders() map[notify.Kind]notify.Sender {
	return map[notify.Kind]notify.Sender{
		notify.Email: &notify.EmailSender{Config: notify.SMTPConfig{
			Server:   os.Getenv("SMTP_SERVER"),
			Port:     getEnvOrDefaultInt("SMTP_PORT", notify.DefaultSMTPPort),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("FROM_EMAIL"),
		}},
		notify.Slack:      &notify.SlackSender{Token: os.Getenv("SLACK_TOKEN")},
		notify.Mattermost: &notify.MattermostSender{Token: os.Getenv("MATTERMOST_TOKEN")},
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q (use debug, info, warn or error)", s)
	}
	return level, nil
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string, level slog.Level) (*slog.Logger, *os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler), file, nil
}
