// Command tokens issues bearer tokens accepted by the validate tool and the MCP endpoint.
//
// Signed tokens need JWT_SECRET (and optionally JWT_ISSUER, JWT_AUDIENCE) in the environment.
// Opaque tokens are written to redis when -redis is set, otherwise printed as a tokens-file entry.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"call-assistant/internal/auth"
	"call-assistant/internal/config"
	"call-assistant/pkg/utils"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

func main() {
	kind := flag.String("kind", "jwt", "Token kind: jwt or opaque")
	user := flag.String("user", "", "User id the token resolves to")
	phone := flag.String("phone", "", "Phone number bound to the user")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime; 0 means no expiry for opaque tokens")
	redisAddr := flag.String("redis", "", "Redis address to store opaque tokens in (host:port)")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "error: -user is required")
		flag.Usage()
		os.Exit(1)
	}

	var err error
	switch *kind {
	case "jwt":
		err = issueSigned(*user, *phone, *ttl)
	case "opaque":
		err = issueOpaque(*user, *phone, *ttl, *redisAddr)
	default:
		err = fmt.Errorf("unknown -kind %q", *kind)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func issueSigned(user, phone string, ttl time.Duration) error {
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   os.Getenv("JWT_ISSUER"),
		JWTAudience: os.Getenv("JWT_AUDIENCE"),
	})
	if err != nil {
		return err
	}
	tok, err := m.Issue(time.Now(), user, auth.NormalizePhone(phone), ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func issueOpaque(user, phone string, ttl time.Duration, redisAddr string) error {
	id := auth.Identity{
		Token:       uuid.NewString(),
		UserID:      user,
		PhoneNumber: auth.NormalizePhone(phone),
	}
	if ttl > 0 {
		id.ExpiresAt = time.Now().Add(ttl).UTC().Truncate(time.Second)
	}

	if redisAddr == "" {
		out, err := yaml.Marshal(auth.ProvisionFile{Tokens: []auth.Identity{id}})
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: redisAddr})
	if err != nil {
		return err
	}
	defer rdb.Close()
	if err := auth.NewRedisStore(rdb, "").Put(ctx, id); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	fmt.Println(id.Token)
	return nil
}
