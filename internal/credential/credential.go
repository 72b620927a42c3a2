// Package credential supplies the bearer token attached to stream handshakes.
//
// Providers are consulted on every connection attempt, so a token rotated in
// the environment or on disk is picked up by the next reconnect.
package credential

import (
	"os"
	"strings"

	"github.com/rileyhilliard/nodewatch/internal/config"
)

// Provider returns the current credential. ok is false when none is available.
type Provider interface {
	Credential() (token string, ok bool)
}

// Func adapts a function to Provider.
type Func func() (string, bool)

// Credential calls f.
func (f Func) Credential() (string, bool) {
	return f()
}

// Static always returns the same token. An empty token means "no credential".
type Static string

// Credential returns the token.
func (s Static) Credential() (string, bool) {
	return string(s), s != ""
}

// Env reads the token from an environment variable on each call.
type Env string

// Credential returns the variable's trimmed value.
func (e Env) Credential() (string, bool) {
	if e == "" {
		return "", false
	}
	v := strings.TrimSpace(os.Getenv(string(e)))
	return v, v != ""
}

// File reads the token from a file on each call.
type File string

// Credential returns the file's trimmed contents.
func (f File) Credential() (string, bool) {
	if f == "" {
		return "", false
	}
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(string(data))
	return v, v != ""
}

// Chain returns the first credential any provider yields.
type Chain []Provider

// Credential tries each provider in order.
func (c Chain) Credential() (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if tok, ok := p.Credential(); ok {
			return tok, true
		}
	}
	return "", false
}

// FromConfig builds the provider chain described by the credential section:
// literal token, then environment variable, then file.
func FromConfig(cfg config.CredentialConfig) Provider {
	return Chain{
		Static(cfg.Token),
		Env(cfg.TokenEnv),
		File(cfg.TokenFile),
	}
}
