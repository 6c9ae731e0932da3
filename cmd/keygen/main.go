// Command keygen mints long-lived anon and service_role access tokens for a
// self-hosted backend and prints them as environment assignments:
//
//	keygen -secret "$JWT_SECRET" >> .env
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MrWong99/meetscribe/internal/auth"
)

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout, os.Stderr, time.Now()); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		}
		os.Exit(1)
	}
}

// keyVars maps each role to the environment variable it is printed as, in
// output order.
var keyVars = []struct {
	role auth.Role
	name string
}{
	{auth.RoleAnon, "ANON_KEY"},
	{auth.RoleService, "SERVICE_ROLE_KEY"},
}

func run(args []string, getenv func(string) string, stdout, stderr io.Writer, now time.Time) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secret := fs.String("secret", "", "HS256 signing secret (default: $JWT_SECRET)")
	issuer := fs.String("issuer", "supabase", "iss claim")
	years := fs.Int("years", 10, "token lifetime in years")
	role := fs.String("role", "all", "which key to print: anon, service_role, or all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if *secret == "" {
		*secret = getenv("JWT_SECRET")
	}
	if *secret == "" {
		return errors.New("no secret: pass -secret or set JWT_SECRET")
	}
	if *years <= 0 {
		return fmt.Errorf("-years %d must be positive", *years)
	}
	if *role != "all" && *role != string(auth.RoleAnon) && *role != string(auth.RoleService) {
		return fmt.Errorf("-role %q must be anon, service_role, or all", *role)
	}

	// Calendar years, so the expiry lands on the same date.
	ttl := now.AddDate(*years, 0, 0).Sub(now)

	for _, kv := range keyVars {
		if *role != "all" && *role != string(kv.role) {
			continue
		}
		tok, err := auth.Mint(*secret, auth.KeySpec{
			Role:     kv.role,
			Issuer:   *issuer,
			IssuedAt: now,
			TTL:      ttl,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s=%s\n", kv.name, tok)
	}
	return nil
}
