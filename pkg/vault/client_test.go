package vault

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/vault/api"
)

type mockLogical struct {
	readSecret  *api.Secret
	readErr     error
	readPaths   []string
	writeSecret *api.Secret
	writeErr    error
	writePaths  []string
	writeData   map[string]interface{}
}

func (m *mockLogical) ReadWithContext(ctx context.Context, path string) (*api.Secret, error) {
	m.readPaths = append(m.readPaths, path)
	return m.readSecret, m.readErr
}

func (m *mockLogical) WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*api.Secret, error) {
	m.writePaths = append(m.writePaths, path)
	m.writeData = data
	return m.writeSecret, m.writeErr
}

type mockKV struct {
	secret *api.KVSecret
	err    error
	paths  []string
}

func (m *mockKV) Get(ctx context.Context, path string) (*api.KVSecret, error) {
	m.paths = append(m.paths, path)
	return m.secret, m.err
}

type mockToken struct {
	renewSecret  *api.Secret
	renewErr     error
	lookupSecret *api.Secret
	lookupErr    error
}

func (m *mockToken) RenewSelfWithContext(ctx context.Context, increment int) (*api.Secret, error) {
	return m.renewSecret, m.renewErr
}

func (m *mockToken) LookupSelfWithContext(ctx context.Context) (*api.Secret, error) {
	return m.lookupSecret, m.lookupErr
}

func testClient(logical *mockLogical, kv *mockKV, token *mockToken) *Client {
	return &Client{
		logical: logical,
		kv:      kv,
		token:   token,
		cfg: Config{
			RoleID:   "role-id",
			SecretID: "secret-id",
			KVMount:  "my-vault-app-kv",
			DBMount:  "my-vault-app-database",
			Timeout:  5 * time.Second,
		},
	}
}

func TestClient_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		logical := &mockLogical{
			writeSecret: &api.Secret{
				Auth: &api.SecretAuth{ClientToken: "hvs.token", LeaseDuration: 300},
			},
		}
		c := testClient(logical, &mockKV{}, &mockToken{})

		grant, err := c.Login(ctx)
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if grant.Token != "hvs.token" || grant.LeaseSeconds != 300 {
			t.Errorf("grant = %+v, want token hvs.token with 300s lease", grant)
		}
		if len(logical.writePaths) != 1 || logical.writePaths[0] != "auth/approle/login" {
			t.Errorf("write paths = %v, want [auth/approle/login]", logical.writePaths)
		}
		if logical.writeData["role_id"] != "role-id" || logical.writeData["secret_id"] != "secret-id" {
			t.Errorf("login payload = %v", logical.writeData)
		}
	})

	t.Run("Remote error", func(t *testing.T) {
		logical := &mockLogical{writeErr: errors.New("permission denied")}
		c := testClient(logical, &mockKV{}, &mockToken{})

		if _, err := c.Login(ctx); err == nil {
			t.Error("Expected login error")
		}
	})

	t.Run("Missing auth block", func(t *testing.T) {
		logical := &mockLogical{writeSecret: &api.Secret{}}
		c := testClient(logical, &mockKV{}, &mockToken{})

		if _, err := c.Login(ctx); err == nil {
			t.Error("Expected error for response without auth block")
		}
	})
}

func TestClient_RenewSelf(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		token := &mockToken{
			renewSecret: &api.Secret{Auth: &api.SecretAuth{LeaseDuration: 120}},
		}
		c := testClient(&mockLogical{}, &mockKV{}, token)

		lease, err := c.RenewSelf(ctx)
		if err != nil {
			t.Fatalf("RenewSelf failed: %v", err)
		}
		if lease != 120 {
			t.Errorf("lease = %d, want 120", lease)
		}
	})

	t.Run("Remote error", func(t *testing.T) {
		token := &mockToken{renewErr: errors.New("token not renewable")}
		c := testClient(&mockLogical{}, &mockKV{}, token)

		if _, err := c.RenewSelf(ctx); err == nil {
			t.Error("Expected renew error")
		}
	})
}

func TestClient_ReadKVSecret(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		kv := &mockKV{
			secret: &api.KVSecret{
				Data:            map[string]interface{}{"api_key": "abc123"},
				VersionMetadata: &api.KVVersionMetadata{Version: 4},
			},
		}
		c := testClient(&mockLogical{}, kv, &mockToken{})

		secret, err := c.ReadKVSecret(ctx, "app/config")
		if err != nil {
			t.Fatalf("ReadKVSecret failed: %v", err)
		}
		if secret.Data["api_key"] != "abc123" {
			t.Errorf("data = %v, want api_key=abc123", secret.Data)
		}
		if secret.Version != 4 {
			t.Errorf("version = %d, want 4", secret.Version)
		}
		if len(kv.paths) != 1 || kv.paths[0] != "app/config" {
			t.Errorf("kv paths = %v, want [app/config]", kv.paths)
		}
	})

	t.Run("Remote error", func(t *testing.T) {
		kv := &mockKV{err: errors.New("connection refused")}
		c := testClient(&mockLogical{}, kv, &mockToken{})

		if _, err := c.ReadKVSecret(ctx, "app/config"); err == nil {
			t.Error("Expected kv read error")
		}
	})
}

func TestClient_GenerateDynamicCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		logical := &mockLogical{
			readSecret: &api.Secret{
				LeaseID:       "database/creds/readonly/abc",
				LeaseDuration: 60,
				Data: map[string]interface{}{
					"username": "v-approle-readonly-x1",
					"password": "A1b2C3",
				},
			},
		}
		c := testClient(logical, &mockKV{}, &mockToken{})

		creds, err := c.GenerateDynamicCredentials(ctx, "readonly")
		if err != nil {
			t.Fatalf("GenerateDynamicCredentials failed: %v", err)
		}
		if creds.Username != "v-approle-readonly-x1" || creds.Password != "A1b2C3" {
			t.Errorf("creds = %+v", creds)
		}
		if creds.LeaseSeconds != 60 || creds.LeaseID != "database/creds/readonly/abc" {
			t.Errorf("lease = %d / %q, want 60 / database/creds/readonly/abc", creds.LeaseSeconds, creds.LeaseID)
		}
		want := "my-vault-app-database/creds/readonly"
		if len(logical.readPaths) != 1 || logical.readPaths[0] != want {
			t.Errorf("read paths = %v, want [%s]", logical.readPaths, want)
		}
	})

	t.Run("Incomplete credentials", func(t *testing.T) {
		logical := &mockLogical{
			readSecret: &api.Secret{
				LeaseDuration: 60,
				Data:          map[string]interface{}{"username": "v-approle-readonly-x1"},
			},
		}
		c := testClient(logical, &mockKV{}, &mockToken{})

		if _, err := c.GenerateDynamicCredentials(ctx, "readonly"); err == nil {
			t.Error("Expected error for missing password")
		}
	})

	t.Run("Remote error", func(t *testing.T) {
		logical := &mockLogical{readErr: errors.New("backend sealed")}
		c := testClient(logical, &mockKV{}, &mockToken{})

		if _, err := c.GenerateDynamicCredentials(ctx, "readonly"); err == nil {
			t.Error("Expected read error")
		}
	})
}

func TestClient_ReadStaticCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("Success with TTL", func(t *testing.T) {
		logical := &mockLogical{
			readSecret: &api.Secret{
				Data: map[string]interface{}{
					"username": "app_static",
					"password": "rotated-pass",
					"ttl":      json.Number("1800"),
				},
			},
		}
		c := testClient(logical, &mockKV{}, &mockToken{})

		creds, err := c.ReadStaticCredentials(ctx, "app-static")
		if err != nil {
			t.Fatalf("ReadStaticCredentials failed: %v", err)
		}
		if creds.Username != "app_static" || creds.Password != "rotated-pass" {
			t.Errorf("creds = %+v", creds)
		}
		if creds.LeaseSeconds != 1800 {
			t.Errorf("LeaseSeconds = %d, want 1800", creds.LeaseSeconds)
		}
		want := "my-vault-app-database/static-creds/app-static"
		if len(logical.readPaths) != 1 || logical.readPaths[0] != want {
			t.Errorf("read paths = %v, want [%s]", logical.readPaths, want)
		}
	})

	t.Run("Missing TTL yields zero", func(t *testing.T) {
		logical := &mockLogical{
			readSecret: &api.Secret{
				Data: map[string]interface{}{
					"username": "app_static",
					"password": "rotated-pass",
				},
			},
		}
		c := testClient(logical, &mockKV{}, &mockToken{})

		creds, err := c.ReadStaticCredentials(ctx, "app-static")
		if err != nil {
			t.Fatalf("ReadStaticCredentials failed: %v", err)
		}
		if creds.LeaseSeconds != 0 {
			t.Errorf("LeaseSeconds = %d, want 0 for missing ttl", creds.LeaseSeconds)
		}
	})

	t.Run("Empty response", func(t *testing.T) {
		c := testClient(&mockLogical{}, &mockKV{}, &mockToken{})

		_, err := c.ReadStaticCredentials(ctx, "app-static")
		if err == nil || !strings.Contains(err.Error(), "no data") {
			t.Errorf("err = %v, want no-data error", err)
		}
	})
}

func TestIntField(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
		want int
	}{
		{"json.Number", map[string]interface{}{"ttl": json.Number("3600")}, 3600},
		{"float64", map[string]interface{}{"ttl": float64(90)}, 90},
		{"int", map[string]interface{}{"ttl": 45}, 45},
		{"missing", map[string]interface{}{}, 0},
		{"wrong type", map[string]interface{}{"ttl": "soon"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := intField(tt.data, "ttl"); got != tt.want {
				t.Errorf("intField() = %d, want %d", got, tt.want)
			}
		})
	}
}
