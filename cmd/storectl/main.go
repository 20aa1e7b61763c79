package main

import (
	"github.com/joho/godotenv"

	"github.com/korelia/storefront-backend/internal/cli"
	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/logging"
)

func main() {
	_ = godotenv.Load()
	logging.Setup(false)
	cli.Execute(config.Load())
}
