package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/magcal/internal/app"
)

func main() {
	configPath := flag.String("config", "magcal_config.txt", "Path to configuration file")
	raw := flag.Bool("raw", false, "Also print raw magnetometer samples")
	flag.Parse()

	log.Println("starting magcal console (MQTT subscriber)")
	if err := app.RunConsoleMQTT(*configPath, *raw); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
