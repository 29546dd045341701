package main

import (
	"fmt"
	"os"

	"github.com/sebastianbergmann/php-code-coverage-sub000/cmd/phpcov/app"
	_ "github.com/sebastianbergmann/php-code-coverage-sub000/internal/driver/gocover" // Register drivers
	_ "github.com/sebastianbergmann/php-code-coverage-sub000/internal/driver/xdebug"
)

func main() {
	if err := app.NewPhpcovCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
