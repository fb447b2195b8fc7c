package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Provider yields the raw session cookie string for a source. An empty
// string without error means no credentials are configured.
type Provider interface {
	Cookies(ctx context.Context) (string, error)
}

// EnvProvider reads cookies from an environment variable.
type EnvProvider struct {
	Var string
}

func (p EnvProvider) Cookies(context.Context) (string, error) {
	if p.Var == "" {
		return "", nil
	}
	return strings.TrimSpace(os.Getenv(p.Var)), nil
}

// FileProvider reads cookies from a file, re-read on every call so refreshed
// cookies are picked up without a restart. Lines starting with '#' are ignored
// and remaining lines are joined with "; ".
type FileProvider struct {
	Path string
}

func (p FileProvider) Cookies(context.Context) (string, error) {
	if p.Path == "" {
		return "", nil
	}

	f, err := os.Open(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to open cookie file %s: %w", p.Path, err)
	}
	defer f.Close()

	var parts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts = append(parts, strings.TrimSuffix(line, ";"))
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read cookie file %s: %w", p.Path, err)
	}

	return strings.Join(parts, "; "), nil
}

// Static returns fixed cookies, mostly useful in tests.
type Static string

func (s Static) Cookies(context.Context) (string, error) {
	return string(s), nil
}

// Chain returns the first non-empty result of its providers.
type Chain []Provider

func (c Chain) Cookies(ctx context.Context) (string, error) {
	for _, p := range c {
		cookies, err := p.Cookies(ctx)
		if err != nil {
			return "", err
		}
		if cookies != "" {
			return cookies, nil
		}
	}
	return "", nil
}

// Parse splits a raw "a=1; b=2" cookie string into cookies, skipping malformed pairs.
func Parse(raw string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, pair := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies
}
