package main

import (
	"log"

	dotenv "github.com/joho/godotenv"

	"humidstat.api/v0/cmd"
)

func main() {
	// Load optional secrets (SMTP, telegram) from a .env file. A missing
	// file just means those notification channels stay disabled.
	if err := dotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v\n", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
