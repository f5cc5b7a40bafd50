// Package main is a development utility for bootstrapping a local OrgDesk
// instance: it generates a JWT signing secret plus a dev user password with
// its bcrypt hash pre-computed, and prints a ready-to-run SQL statement to
// seed a usable credential account in a local database without walking
// through the signup flow. Do not use generated values in production.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		log.Fatal(err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	passwordBytes := make([]byte, 12)
	if _, err := rand.Read(passwordBytes); err != nil {
		log.Fatal(err)
	}
	password := "dev_" + base64.RawURLEncoding.EncodeToString(passwordBytes)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Development Secrets Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nexport ORGDESK_JWT_SECRET=%s\n", secret)
	fmt.Printf("\nDev Password: %s\n", password)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Update:")
	fmt.Println("==========================================================")
	fmt.Printf(`
UPDATE accounts
SET password_hash = '%s'
WHERE provider_id = 'credential'
  AND user_id = (SELECT id FROM users WHERE email = 'admin@dev.local');
`, string(hashBytes))
	fmt.Println("\n==========================================================")
}
