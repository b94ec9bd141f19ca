package main

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/rahataid/rahat-offramp/internal/mockbackend"
)

// =============================================================================
// Offramp Backend Mock Server
// =============================================================================
// Serves the offramp backend API under /v1/offramps for local runs of the
// service and CLI. Admin routes:
//   POST /admin/reset              restore the seeded providers and wallets
//   POST /admin/status/:ref        set the provider status of an execution
//   GET  /admin/executions         list submitted executions
// =============================================================================

func main() {
	server := mockbackend.New()

	app := fiber.New(fiber.Config{
		AppName: "Offramp Backend Mock Server",
	})
	app.Use(logger.New())
	app.Mount("/", server.App(mockbackend.BasePath))

	port := os.Getenv("PORT")
	if port == "" {
		port = "5500"
	}

	log.Printf("Offramp Backend Mock Server starting on port %s", port)
	log.Fatal(app.Listen(":" + port))
}
