package main

import (
	"errors"
	"os"

	"github.com/jiandanzhineng/easysmart-tools/cmd"
	"github.com/jiandanzhineng/easysmart-tools/pkg/logger"
)

var version = "1.0.0"

func main() {
	if err := cmd.Execute(version); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		logger.Fatalf("Error: %v", err)
	}
}
