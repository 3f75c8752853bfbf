// Command token mints an access token for local testing and operations,
// e.g. a STAFF token for running a manual sweep.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/transport-reservation/internal/middleware"
	"github.com/iliyamo/transport-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()
	client := flag.Uint64("client", 1, "client id stored in the sub claim")
	role := flag.String("role", middleware.RoleCliente, "CLIENTE or STAFF")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("missing required env var: JWT_SECRET")
	}
	if *role != middleware.RoleCliente && *role != middleware.RoleStaff {
		log.Fatalf("unknown role %q", *role)
	}
	tok, err := utils.NewAccessToken(secret, *client, *role, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok.Token)
}
