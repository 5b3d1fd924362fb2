package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/HerbHall/uptimed/internal/auth"
	"github.com/HerbHall/uptimed/internal/server"
)

// runToken prints a signed access token for the configured JWT secret.
// Handy for curl and the WebSocket ?token= parameter.
func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	subject := fs.String("sub", "cli", "token subject")
	role := fs.String("role", "authenticated", "role claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	v, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		return 1
	}
	ts, err := auth.NewTokenService([]byte(v.GetString("auth.jwt_secret")), *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v (set auth.jwt_secret or UPTIMED_AUTH_JWT_SECRET)\n", err)
		return 1
	}
	token, err := ts.Issue(*subject, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
