// Command hashpw prints the bcrypt hash of a password, for seeding accounts
// straight into the store. The password is read without echo from a
// terminal, or from the first line of stdin otherwise.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/geocoder89/chatauth/internal/config"
	"github.com/geocoder89/chatauth/internal/security"
	"golang.org/x/term"
)

func main() {
	cfg, err := config.LoadHasher()
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashpw:", err)
		os.Exit(1)
	}

	cost := flag.Int("cost", cfg.BcryptCost, "bcrypt cost (default from BCRYPT_COST)")
	flag.Parse()

	password, err := readPassword()
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashpw:", err)
		os.Exit(1)
	}

	hasher, err := security.NewHasher(*cost, 1)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashpw:", err)
		os.Exit(1)
	}

	hash, err := hasher.Hash(context.Background(), password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashpw:", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())

	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return checkPassword(string(b))
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return checkPassword(strings.TrimRight(line, "\r\n"))
}

func checkPassword(p string) (string, error) {
	if p == "" {
		return "", errors.New("empty password")
	}
	if len(p) > security.MaxPasswordBytes {
		return "", fmt.Errorf("password longer than %d bytes", security.MaxPasswordBytes)
	}
	return p, nil
}
