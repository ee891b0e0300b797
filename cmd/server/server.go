package main

import (
	"log"

	"github.com/platefeed/server/internal/serverrun"
)

func main() {
	if err := serverrun.Run(); err != nil {
		log.Fatal(err)
	}
}
