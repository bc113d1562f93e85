package api

import (
	"net/http"
	"time"

	"mobilecontrol/adb"

	"github.com/gin-gonic/gin"
)

func secondsToDuration(s int) time.Duration { return time.Duration(s) * time.Second }

func millisToDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// SetupRoutes wires the HTTP API.
func SetupRoutes(router *gin.Engine, adbClient *adb.ADBClient, registry *DeviceRegistry, hub *WebSocketHub) {
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	})

	api := router.Group("/api")
	{
		api.GET("/devices", func(c *gin.Context) {
			ListDevices(c, adbClient)
		})

		device := api.Group("/device/:serial")
		{
			device.POST("/start", func(c *gin.Context) {
				StartDevice(c, registry)
			})
			device.POST("/stop", func(c *gin.Context) {
				StopDevice(c, registry)
			})
			device.GET("/state", func(c *gin.Context) {
				DeviceState(c, registry)
			})

			device.POST("/action/:type", func(c *gin.Context) {
				DispatchAction(c, registry)
			})

			device.GET("/activity", func(c *gin.Context) {
				CurrentActivity(c, registry)
			})
			device.GET("/activity/check", func(c *gin.Context) {
				CheckActivity(c, registry)
			})

			device.POST("/recording/pause", func(c *gin.Context) {
				PauseRecording(c, registry)
			})
			device.POST("/recording/resume", func(c *gin.Context) {
				ResumeRecording(c, registry)
			})

			device.POST("/mirror/start", func(c *gin.Context) {
				StartMirror(c, registry)
			})
			device.POST("/mirror/stop", func(c *gin.Context) {
				StopMirror(c, registry)
			})
			device.POST("/mirror/input/:type", func(c *gin.Context) {
				MirrorInput(c, registry)
			})
		}
	}

	router.GET("/ws", func(c *gin.Context) {
		HandleWebSocket(hub, registry, c)
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
