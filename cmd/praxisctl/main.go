package main

import (
	"context"
	"log"

	"github.com/praxima-health/praxis/cmd/praxisctl/cmd"
	"github.com/praxima-health/praxis/tracing"
)

func main() {
	tp, err := tracing.InitTracerProvider("praxisctl")
	if err != nil {
		log.Fatalf("Failed to initialize TracerProvider: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down TracerProvider: %v", err)
		}
	}()

	cmd.Execute()
}
