package main

import (
	"starlinks/cmd/handlers"
	"starlinks/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
