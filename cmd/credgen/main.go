package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

func main() {
	user := "admin"
	if len(os.Args) > 1 {
		user = os.Args[1]
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "generate password: %v\n", err)
		os.Exit(1)
	}
	pass := base64.RawURLEncoding.EncodeToString(buf)

	fmt.Printf("User: %s\n", user)
	fmt.Printf("Password: %s\n", pass)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("  auth:\n")
	fmt.Printf("    users:\n")
	fmt.Printf("      %s:\n", user)
	fmt.Printf("        - \"%s\"\n", pass)
}
