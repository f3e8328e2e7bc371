package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/vault/api"
)

// logicalAPI is the subset of api.Logical the client uses.
type logicalAPI interface {
	ReadWithContext(ctx context.Context, path string) (*api.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*api.Secret, error)
}

// kvAPI is the subset of api.KVv2 the client uses.
type kvAPI interface {
	Get(ctx context.Context, path string) (*api.KVSecret, error)
}

// tokenAPI is the subset of api.TokenAuth the client uses.
type tokenAPI interface {
	RenewSelfWithContext(ctx context.Context, increment int) (*api.Secret, error)
	LookupSelfWithContext(ctx context.Context) (*api.Secret, error)
}

// Config holds the settings needed to construct a Client.
type Config struct {
	Address   string
	Namespace string
	RoleID    string
	SecretID  string
	KVMount   string        // KV v2 mount path, e.g. "my-vault-app-kv".
	DBMount   string        // Database engine mount path, e.g. "my-vault-app-database".
	Timeout   time.Duration // Per-request bound. Default: 10s.
}

// Client implements API on top of the HashiCorp Vault client.
type Client struct {
	client  *api.Client
	logical logicalAPI
	kv      kvAPI
	token   tokenAPI
	cfg     Config
}

// NewClient initializes a Vault client for the given configuration.
func NewClient(cfg Config) (*Client, error) {
	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		apiCfg.Timeout = cfg.Timeout
	} else {
		cfg.Timeout = 10 * time.Second
		apiCfg.Timeout = cfg.Timeout
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return &Client{
		client:  client,
		logical: client.Logical(),
		kv:      client.KVv2(cfg.KVMount),
		token:   client.Auth().Token(),
		cfg:     cfg,
	}, nil
}

// SetToken installs the token used for subsequent calls.
func (c *Client) SetToken(token string) {
	c.client.SetToken(token)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// Login authenticates via the AppRole auth method.
func (c *Client) Login(ctx context.Context) (*TokenGrant, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	secret, err := c.logical.WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
		"role_id":   c.cfg.RoleID,
		"secret_id": c.cfg.SecretID,
	})
	if err != nil {
		return nil, fmt.Errorf("approle login failed: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return nil, fmt.Errorf("approle login returned no token")
	}

	return &TokenGrant{
		Token:        secret.Auth.ClientToken,
		LeaseSeconds: secret.Auth.LeaseDuration,
	}, nil
}

// RenewSelf renews the current token, keeping the same token value.
func (c *Client) RenewSelf(ctx context.Context) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	secret, err := c.token.RenewSelfWithContext(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("token renewal failed: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return 0, fmt.Errorf("token renewal returned no lease")
	}
	return secret.Auth.LeaseDuration, nil
}

// LookupSelf returns introspection metadata for the current token.
func (c *Client) LookupSelf(ctx context.Context) (map[string]interface{}, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	secret, err := c.token.LookupSelfWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("token lookup returned no data")
	}
	return secret.Data, nil
}

// ReadKVSecret reads a versioned secret from the KV v2 engine.
func (c *Client) ReadKVSecret(ctx context.Context, path string) (*KVSecret, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	secret, err := c.kv.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("kv read %s failed: %w", path, err)
	}
	if secret == nil {
		return nil, fmt.Errorf("kv read %s returned no data", path)
	}

	version := 0
	if secret.VersionMetadata != nil {
		version = secret.VersionMetadata.Version
	}
	return &KVSecret{Data: secret.Data, Version: version}, nil
}

// GenerateDynamicCredentials requests fresh credentials from the database engine.
func (c *Client) GenerateDynamicCredentials(ctx context.Context, role string) (*Credentials, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	path := fmt.Sprintf("%s/creds/%s", c.cfg.DBMount, role)
	secret, err := c.logical.ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("dynamic credentials read %s failed: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("dynamic credentials read %s returned no data", path)
	}

	creds := credentialsFromData(secret.Data)
	creds.LeaseSeconds = secret.LeaseDuration
	creds.LeaseID = secret.LeaseID
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("dynamic credentials read %s returned incomplete credentials", path)
	}
	return creds, nil
}

// ReadStaticCredentials reads the current static credentials for a role. The
// response may omit a TTL; callers apply their own fallback in that case.
func (c *Client) ReadStaticCredentials(ctx context.Context, role string) (*Credentials, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	path := fmt.Sprintf("%s/static-creds/%s", c.cfg.DBMount, role)
	secret, err := c.logical.ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("static credentials read %s failed: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("static credentials read %s returned no data", path)
	}

	creds := credentialsFromData(secret.Data)
	creds.LeaseSeconds = intField(secret.Data, "ttl")
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("static credentials read %s returned incomplete credentials", path)
	}
	return creds, nil
}

func credentialsFromData(data map[string]interface{}) *Credentials {
	creds := &Credentials{}
	if v, ok := data["username"].(string); ok {
		creds.Username = v
	}
	if v, ok := data["password"].(string); ok {
		creds.Password = v
	}
	return creds
}

// intField extracts an integer field from Vault response data, which decodes
// numbers as json.Number.
func intField(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
