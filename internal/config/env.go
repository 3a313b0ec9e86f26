package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFile returns the .env path named by -e/--env-file in args, then ENV_FILE,
// then ".env".
func EnvFile(args []string) string {
	for i, arg := range args {
		switch {
		case (arg == "-e" || arg == "--env-file") && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--env-file="):
			return strings.TrimPrefix(arg, "--env-file=")
		}
	}
	if v := os.Getenv("ENV_FILE"); v != "" {
		return v
	}
	return ".env"
}

// LoadDotEnv loads the .env file selected by EnvFile. Variables already set
// in the environment win. A missing file is not an error.
func LoadDotEnv(args []string) (string, error) {
	path := EnvFile(args)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}
	return path, godotenv.Load(path)
}
