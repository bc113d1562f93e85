package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"mobilecontrol/adb"
	"mobilecontrol/api"
	"mobilecontrol/config"
	"mobilecontrol/service"

	"github.com/gin-gonic/gin"
)

// setupLogging creates a log file in the log directory with timestamp
// Returns the log file handle (caller should defer Close())
func setupLogging() (*os.File, error) {
	// Create log directory if not exists
	logDir := "log"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Create log file with timestamp: log/2025-12-08_21-52-35.log
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logDir, timestamp+".log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Write to both console and file
	multiWriter := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multiWriter)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	log.Printf("📝 Logging to: %s", logPath)
	return logFile, nil
}

func main() {
	// Setup file logging
	logFile, err := setupLogging()
	if err != nil {
		log.Printf("Warning: Failed to setup file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting Mobile Control Backend...")

	// Action log database is optional: the server runs without it.
	var actionLog *service.ActionLog
	db, err := config.InitDatabase()
	if err != nil {
		log.Printf("Warning: Failed to initialize database, actions will not be logged: %v", err)
	} else {
		defer db.Close()
		actionLog = service.NewActionLog(db)
	}

	adbClient := adb.NewADBClient()

	// Initialize WebSocket hub
	wsHub := api.NewWebSocketHub()
	go wsHub.Run()

	registry := api.NewDeviceRegistry(adbClient, actionLog, wsHub)
	defer registry.StopAll()

	// Setup HTTP server
	router := gin.Default()
	api.SetupRoutes(router, adbClient, registry, wsHub)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on http://localhost:%s", port)
	log.Printf("WebSocket server on ws://localhost:%s/ws", port)

	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
