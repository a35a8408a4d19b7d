package main

import (
	"log"
	"os"

	"github.com/volskaya/norman/cmd/internal/app"
)

func main() {
	if err := app.Run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}
