package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadDotEnv reads a .env file from the working directory and sets any
// variables that aren't already set in the environment. Lines are
// KEY=VALUE (or KEY="VALUE"). Comments (#) and blanks are skipped.
// The .env file is gitignored so secrets never end up in source control.
func LoadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return // no .env file, nothing to do
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}
