package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"payhook/pkg/logger"
)

func main() {
	// Development reads .env; production uses real environment
	// variables
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using system environment")
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Init(env)

	Serve()
}
