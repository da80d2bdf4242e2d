package creds

import (
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"
)

// TerminalPrompter reads credentials from the controlling terminal.
// Usernames go through readline; secrets are read with echo disabled.
type TerminalPrompter struct{}

func (TerminalPrompter) Basic(authName string) (string, string, error) {
	fmt.Printf("\nAuthentication required for: %s (basic)\n", authName)

	rl, err := readline.New("Username: ")
	if err != nil {
		return "", "", fmt.Errorf("init prompt: %w", err)
	}
	defer rl.Close()

	username, err := rl.Readline()
	if err != nil {
		return "", "", fmt.Errorf("read username: %w", err)
	}
	username = strings.TrimSpace(username)

	password, err := readSecret("Password: ")
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

func (TerminalPrompter) Token(authName string) (string, error) {
	fmt.Printf("\nAuthentication required for: %s (token)\n", authName)
	return readSecret("Token: ")
}

func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
