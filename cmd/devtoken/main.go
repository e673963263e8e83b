// Command devtoken prints a bearer token for local testing of the
// protected routes.  Real tokens are issued by the identity provider.
//
//	go run ./cmd/devtoken -user 1 -role USER
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/IstFranco/utn-events/internal/utils"
)

func main() {
	_ = godotenv.Load()
	userID := flag.Uint64("user", 1, "user or company id (token subject)")
	role := flag.String("role", "USER", "USER or COMPANY")
	ttl := flag.Int("ttl", 60, "lifetime in minutes")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	if *role != "USER" && *role != "COMPANY" {
		log.Fatalf("unknown role %q", *role)
	}
	tok, err := utils.NewAccessToken(secret, *userID, *role, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok.Token)
}
