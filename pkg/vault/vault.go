// Package vault wraps the HashiCorp Vault API for AppRole authentication and
// the three secret engines the agent consumes: KV v2, dynamic database
// credentials, and static database credentials.
package vault

import "context"

// TokenGrant is the result of a successful login.
type TokenGrant struct {
	Token        string
	LeaseSeconds int
}

// KVSecret is a versioned KV v2 secret payload.
type KVSecret struct {
	Data    map[string]interface{}
	Version int
}

// Credentials is a database username/password pair issued by Vault.
type Credentials struct {
	Username     string
	Password     string
	LeaseSeconds int
	LeaseID      string
}

// API is the remote boundary the credential manager depends on. The concrete
// implementation is Client; tests substitute call-counting fakes.
type API interface {
	// Login authenticates with AppRole credentials and returns a new token grant.
	Login(ctx context.Context) (*TokenGrant, error)

	// RenewSelf renews the current token and returns the new lease in seconds.
	RenewSelf(ctx context.Context) (int, error)

	// LookupSelf returns introspection metadata for the current token.
	LookupSelf(ctx context.Context) (map[string]interface{}, error)

	// SetToken installs the token used for subsequent calls.
	SetToken(token string)

	// ReadKVSecret reads a KV v2 secret at the given path under the KV mount.
	ReadKVSecret(ctx context.Context, path string) (*KVSecret, error)

	// GenerateDynamicCredentials requests fresh credentials from the database
	// secret engine for the given role.
	GenerateDynamicCredentials(ctx context.Context, role string) (*Credentials, error)

	// ReadStaticCredentials reads the current static credentials for the given role.
	ReadStaticCredentials(ctx context.Context, role string) (*Credentials, error)
}
