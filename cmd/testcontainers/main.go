package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/localnerve/contentdb/internal/testsupport"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	flag.Parse()

	usage := `
Run MariaDB and Redis containers for local contentdb development.
Prints DB_HOST, DB_PORT and REDIS_URL, then waits for a signal.

Usage:

testcontainers [-h] [-f ENV_FILE_PATH]

ENV_FILE_PATH: path to the .env file (DB_IMAGE, REDIS_IMAGE, DB_ROOT_PASSWORD)

example
  testcontainers -f /path/to/something/.env
`
	if showHelp {
		fmt.Println(usage)
		return
	}

	if envFilename != "" {
		log.Printf("Loading environment variables from %s\n", envFilename)
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load environment variables: %v\n", err)
		}
	} else {
		log.Printf("No environment file specified, using current environment variables\n")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	tc, err := testsupport.StartContainers(ctx, log.Printf)
	if err != nil {
		log.Printf("Failed to create test containers: %v\n", err)
		os.Exit(1)
	}
	log.Printf("Containers ready. DB_TYPE=mariadb DB_DATABASE=contentdb DB_APP_USER=contentdb\n")

	<-ctx.Done()
	log.Printf("Received signal, terminating test containers...\n")
	tc.Terminate(context.Background(), log.Printf)
}
