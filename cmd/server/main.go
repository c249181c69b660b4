package main

import (
	"log"

	"leadwise-backend/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
