package main

import (
	"log"

	"github.com/MrSnakeDoc/bountyboard/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ bountyboard failed to start: %v", err)
	}
}
