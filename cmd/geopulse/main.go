package main

import (
	"log"

	"geopulse/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("geopulse: %v", err)
	}
}
