package registry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/channelsync/backend/internal/domain/channel"
)

// EnvCredentialStore resolves channel credentials from environment
// variables. A channel's credential_ref names the variable group:
// ref "shop-a" reads CHANNELSYNC_CRED_SHOP_A_API_KEY and friends.
// Secrets never touch the database this way.
type EnvCredentialStore struct {
	prefix string
}

// NewEnvCredentialStore creates a store with the CHANNELSYNC_CRED prefix
func NewEnvCredentialStore() *EnvCredentialStore {
	return &EnvCredentialStore{prefix: "CHANNELSYNC_CRED"}
}

// Resolve implements channel.CredentialStore
func (s *EnvCredentialStore) Resolve(_ context.Context, credentialRef string) (*channel.Credentials, error) {
	if credentialRef == "" {
		return nil, fmt.Errorf("empty credential reference: %w", channel.ErrAuthFailed)
	}

	key := s.envKey(credentialRef)
	creds := &channel.Credentials{
		APIKey:        os.Getenv(key + "_API_KEY"),
		APISecret:     os.Getenv(key + "_API_SECRET"),
		AccessToken:   os.Getenv(key + "_ACCESS_TOKEN"),
		WebhookSecret: os.Getenv(key + "_WEBHOOK_SECRET"),
		Endpoint:      os.Getenv(key + "_ENDPOINT"),
	}

	if creds.APIKey == "" && creds.AccessToken == "" {
		return nil, fmt.Errorf("no credentials configured for %q: %w", credentialRef, channel.ErrAuthFailed)
	}
	return creds, nil
}

func (s *EnvCredentialStore) envKey(credentialRef string) string {
	normalized := strings.ToUpper(credentialRef)
	normalized = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(normalized)
	return s.prefix + "_" + normalized
}

// StaticCredentialStore serves a fixed credential set per reference.
// Used in tests and single-store deployments configured at startup.
type StaticCredentialStore struct {
	creds map[string]*channel.Credentials
}

// NewStaticCredentialStore creates a store from a fixed map
func NewStaticCredentialStore(creds map[string]*channel.Credentials) *StaticCredentialStore {
	if creds == nil {
		creds = make(map[string]*channel.Credentials)
	}
	return &StaticCredentialStore{creds: creds}
}

// Resolve implements channel.CredentialStore
func (s *StaticCredentialStore) Resolve(_ context.Context, credentialRef string) (*channel.Credentials, error) {
	c, ok := s.creds[credentialRef]
	if !ok {
		return nil, fmt.Errorf("unknown credential reference %q: %w", credentialRef, channel.ErrAuthFailed)
	}
	return c, nil
}
