// Package main is an operator tool for seeding admin accounts without the HTTP API.
//
//	hash password [-cost N]   read a password on stdin and print its bcrypt hash
//	hash totp [-issuer NAME] <email>
//	                          print a new TOTP secret and otpauth:// URL for an admin
//	hash key                  print a random base64 key for TOTP_ENCRYPTION_KEY
//
// When TOTP_ENCRYPTION_KEY is set, totp also prints the sealed secret to store in
// admins.totp_secret.
package main

import (
	"bufio"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/stagehand/adminauth/internal/auth"
	"github.com/stagehand/adminauth/internal/crypto"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: hash <password|totp|key> [flags]")
	}
	switch args[0] {
	case "password":
		return hashPassword(args[1:], stdin, stdout)
	case "totp":
		return provisionTOTP(args[1:], stdout)
	case "key":
		return generateKey(stdout)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func hashPassword(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("password", flag.ContinueOnError)
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.NewPasswordHasher(*cost).Hash(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

func provisionTOTP(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("totp", flag.ContinueOnError)
	issuer := fs.String("issuer", "Stagehand Admin", "issuer shown in authenticator apps")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: hash totp [-issuer NAME] <email>")
	}

	secret, url, err := auth.GenerateTOTPSecret(*issuer, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "secret: %s\nurl:    %s\n", secret, url)

	material := os.Getenv("TOTP_ENCRYPTION_KEY")
	if material == "" {
		return nil
	}
	cipher, err := crypto.CipherFromKeyMaterial(material)
	if err != nil {
		return err
	}
	sealed, err := cipher.Seal(secret)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "sealed: %s\n", sealed)
	return nil
}

func generateKey(stdout io.Writer) error {
	raw, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, base64.StdEncoding.EncodeToString(raw))
	return nil
}
