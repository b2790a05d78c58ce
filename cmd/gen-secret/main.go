package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
)

func main() {
	size := flag.Int("bytes", 32, "Number of random bytes in the secret")
	flag.Parse()

	if *size < 32 {
		log.Fatal("Refusing to generate a secret shorter than 32 bytes")
	}

	// Generate the HS256 signing secret
	buf := make([]byte, *size)
	if _, err := rand.Read(buf); err != nil {
		log.Fatal("Failed to read random bytes:", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	fmt.Println("=== TOKEN SECRET (Keep this secret!) ===")
	fmt.Println("Add this to config.yaml or set it as CARDCHESS_SERVER_JWT_SECRET:")
	fmt.Println()
	fmt.Println("  server:")
	fmt.Printf("    jwt_secret: %q\n", secret)
	fmt.Println()
	fmt.Println("=== IMPORTANT SECURITY NOTES ===")
	fmt.Println("1. NEVER commit the secret to version control")
	fmt.Println("2. Rotating the secret logs every player out")
	fmt.Println("3. Use environment variables or secure key management in production")
}
