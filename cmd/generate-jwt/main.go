package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/auth"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/config"
)

// Mints a session token for an address without the signed login, for
// operators and local testing.
func main() {
	address := flag.String("address", "", "caller address the token is issued to")
	configPath := flag.String("config", "", "Path to config.yaml (reads auth.jwt_secret)")
	secret := flag.String("secret", "", "JWT secret, overrides the config file")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if !common.IsHexAddress(*address) {
		fmt.Fprintln(os.Stderr, "Error: -address must be a hex address")
		os.Exit(2)
	}

	jwtSecret := *secret
	if jwtSecret == "" {
		cfg, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		jwtSecret = cfg.Auth.JWTSecret
	}

	caller := common.HexToAddress(*address)
	token, expires, err := auth.NewTokenIssuer(jwtSecret, *ttl).Issue(caller)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println(token)
	fmt.Println()
	fmt.Printf("  Caller:  %s\n", caller.Hex())
	fmt.Printf("  Expires: %s\n", expires.Format(time.RFC3339))
	fmt.Println()
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/transfers\n", token)
}
