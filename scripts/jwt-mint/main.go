// Command jwt-mint issues a bearer token for local testing of the jwt auth
// mode. The token is signed with the same HMAC secret the server verifies.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
)

const secretEnv = "SHEETGQL_SERVER_AUTH_JWT_SECRET"

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(args []string, getenv func(string) string, stdout io.Writer) error {
	subjectDefault := "user-1"
	if u, err := user.Current(); err == nil {
		subjectDefault = u.Username
	}

	fs := pflag.NewFlagSet("jwt-mint", pflag.ContinueOnError)
	secretFile := fs.String("secret-file", "", "File holding the HMAC secret (default $"+secretEnv+")")
	method := fs.String("method", "HS256", "Signing method: HS256, HS384, HS512")
	issuer := fs.String("issuer", "", "JWT issuer (optional)")
	audience := fs.String("audience", "", "JWT audience, comma-separated (optional)")
	subject := fs.String("subject", subjectDefault, "JWT subject")
	spreadsheets := fs.String("spreadsheets", "*", "Spreadsheet ids the token grants, comma-separated; * grants all")
	claimName := fs.String("claim", "spreadsheets", "Name of the grant claim")
	expires := fs.Duration("expires", time.Hour, "Token lifetime (e.g. 1h)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := loadSecret(*secretFile, getenv)
	if err != nil {
		return err
	}
	signingMethod := jwt.GetSigningMethod(strings.ToUpper(*method))
	if _, ok := signingMethod.(*jwt.SigningMethodHMAC); !ok {
		return fmt.Errorf("unsupported signing method %q", *method)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      *subject,
		"iat":      now.Unix(),
		"nbf":      now.Add(-1 * time.Minute).Unix(),
		"exp":      now.Add(*expires).Unix(),
		*claimName: splitList(*spreadsheets),
	}
	if *issuer != "" {
		claims["iss"] = *issuer
	}
	if aud := splitList(*audience); len(aud) > 0 {
		claims["aud"] = aud
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, signed)
	return err
}

func loadSecret(path string, getenv func(string) string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret: %w", err)
		}
		if secret := strings.TrimSpace(string(data)); secret != "" {
			return []byte(secret), nil
		}
		return nil, fmt.Errorf("secret file %s is empty", path)
	}
	if secret := strings.TrimSpace(getenv(secretEnv)); secret != "" {
		return []byte(secret), nil
	}
	return nil, errors.New("no secret: pass --secret-file or set " + secretEnv)
}

func splitList(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
