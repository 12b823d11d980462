package cmd

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads the env file named by the -env flag, if any, into the
// process environment, and returns the remaining command line arguments. It
// must run before the config is parsed.
func LoadEnvFile() []string {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		return flag.Args()
	}

	log.Printf("loading env from file %s", configPath)
	if err := godotenv.Load(configPath); err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}

	return flag.Args()
}
