// Package credentials resolves the active API secret for a provider.
package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/crmassist/internal/config"
)

// Resolver returns the active secret for a provider, or false when none is set
type Resolver interface {
	ActiveCredential(ctx context.Context, provider string) (string, bool, error)
}

// Decrypter opens a stored ciphertext
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// DecrypterFunc adapts a function to Decrypter
type DecrypterFunc func(ctx context.Context, ciphertext string) (string, error)

func (f DecrypterFunc) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return f(ctx, ciphertext)
}

// StaticResolver serves secrets held in memory
type StaticResolver struct {
	mu      sync.RWMutex
	secrets map[string]string
}

var _ Resolver = &StaticResolver{}

func NewStaticResolver(secrets map[string]string) *StaticResolver {
	r := &StaticResolver{secrets: make(map[string]string, len(secrets))}
	for provider, secret := range secrets {
		r.Set(provider, secret)
	}
	return r
}

// FromConfig builds a resolver from the providers section
func FromConfig(cfg config.ProvidersConfig) *StaticResolver {
	return NewStaticResolver(map[string]string{
		"openai":    cfg.OpenAI.APIKey,
		"anthropic": cfg.Anthropic.APIKey,
		"gemini":    cfg.Gemini.APIKey,
	})
}

// Set replaces the secret for provider; an empty secret removes it
func (r *StaticResolver) Set(provider, secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	secret = strings.TrimSpace(secret)
	if secret == "" {
		delete(r.secrets, provider)
		return
	}
	r.secrets[provider] = secret
}

func (r *StaticResolver) ActiveCredential(_ context.Context, provider string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	secret, ok := r.secrets[provider]
	return secret, ok, nil
}

// EncryptedResolver decrypts stored ciphertexts on each lookup
type EncryptedResolver struct {
	mu          sync.RWMutex
	ciphertexts map[string]string
	decrypter   Decrypter
}

var _ Resolver = &EncryptedResolver{}

func NewEncryptedResolver(decrypter Decrypter) *EncryptedResolver {
	return &EncryptedResolver{
		ciphertexts: make(map[string]string),
		decrypter:   decrypter,
	}
}

// Store records the ciphertext for provider
func (r *EncryptedResolver) Store(provider, ciphertext string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ciphertexts[provider] = ciphertext
}

func (r *EncryptedResolver) ActiveCredential(ctx context.Context, provider string) (string, bool, error) {
	r.mu.RLock()
	ciphertext, ok := r.ciphertexts[provider]
	r.mu.RUnlock()
	if !ok || ciphertext == "" {
		return "", false, nil
	}

	secret, err := r.decrypter.Decrypt(ctx, ciphertext)
	if err != nil {
		return "", false, fmt.Errorf("failed to decrypt %s credential: %w", provider, err)
	}
	if secret == "" {
		return "", false, nil
	}
	return secret, true, nil
}

// Chain tries each resolver in order and returns the first secret found
type Chain []Resolver

func (c Chain) ActiveCredential(ctx context.Context, provider string) (string, bool, error) {
	for _, r := range c {
		secret, ok, err := r.ActiveCredential(ctx, provider)
		if err != nil {
			return "", false, err
		}
		if ok {
			return secret, true, nil
		}
	}
	return "", false, nil
}
