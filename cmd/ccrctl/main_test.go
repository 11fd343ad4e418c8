package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/keychain"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/utils"
)

// setupTest points ccrctl at a temp home, a config naming serverURL and a
// mock keychain. It returns the config path.
func setupTest(t *testing.T, serverURL string) (string, *keychain.Mock) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CCR_SERVER_URL", "")

	dir := filepath.Join(home, ".ccr")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	path := filepath.Join(dir, "config.yaml")
	cfg := "server:\n  url: " + serverURL + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	kc := keychain.NewMock()
	orig := keychainFactory
	keychainFactory = func() keychain.Keychain { return kc }
	t.Cleanup(func() { keychainFactory = orig })
	return path, kc
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func fakeServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	tok, err := utils.NewIdentityToken("test-secret", utils.IdentityClaims{UserID: "u1", Email: "test@example.com", Name: "Test User"}, 15)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/auth/login":
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Password != "password123" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"success":false,"error":"AuthRequired","message":"invalid email or password"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"user":    map[string]string{"id": "u1", "email": "test@example.com", "name": "Test User"},
				"access":  map[string]any{"token": tok.Token, "expires": tok.Exp},
				"refresh": map[string]any{"token": "refresh-1", "expires": time.Now().Add(24 * time.Hour)},
			})
		case "/api/auth/logout":
			_, _ = w.Write([]byte(`{"success":true}`))
		case "/api/vehicles":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"count":   1,
				"data": []model.Vehicle{{
					ID: "v1", OwnerID: "u2", Status: model.VehicleActive, Year: 2021,
					Make: "Toyota", Model: "Corolla", City: "Austin", Price: 45, Frequency: "day",
				}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ccrctl version "+version)
}

func TestConfigSetAndShow(t *testing.T) {
	path, _ := setupTest(t, "http://localhost:3000")

	_, err := run(t, "--config", path, "config", "set", "server.url", "https://api.example.com")
	require.NoError(t, err)

	out, err := run(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "url: https://api.example.com")

	out, err = run(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, path)
}

func TestConfigSetRejectsUnknownKey(t *testing.T) {
	path, _ := setupTest(t, "http://localhost:3000")

	_, err := run(t, "--config", path, "config", "set", "nope", "x")
	assert.ErrorContains(t, err, "unknown config key")
}

func TestLoginWhoamiLogout(t *testing.T) {
	srv, calls := fakeServer(t)
	path, kc := setupTest(t, srv.URL)

	out, err := run(t, "--config", path, "login", "--email", "test@example.com", "--password", "password123")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as test@example.com")

	stored, err := kc.Get(keychain.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", stored)

	out, err = run(t, "--config", path, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Test User <test@example.com>")
	assert.Contains(t, out, "role: host")

	out, err = run(t, "--config", path, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out successfully")
	assert.Contains(t, *calls, "POST /api/auth/logout")

	_, err = kc.Get(keychain.KeyIdentityToken)
	assert.Error(t, err)

	out, err = run(t, "--config", path, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
}

func TestLoginWrongPassword(t *testing.T) {
	srv, _ := fakeServer(t)
	path, _ := setupTest(t, srv.URL)

	_, err := run(t, "--config", path, "login", "--email", "test@example.com", "--password", "wrong")
	assert.ErrorContains(t, err, "login failed")
}

func TestVehiclesList(t *testing.T) {
	srv, _ := fakeServer(t)
	path, _ := setupTest(t, srv.URL)

	out, err := run(t, "--config", path, "vehicles", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "v1")
	assert.Contains(t, out, "Corolla")
	assert.Contains(t, out, "45.00/day")
}

func TestVehiclesListServedFromCacheWhenOffline(t *testing.T) {
	srv, _ := fakeServer(t)
	path, _ := setupTest(t, srv.URL)

	_, err := run(t, "--config", path, "vehicles", "list")
	require.NoError(t, err)
	srv.Close()

	out, err := run(t, "--config", path, "vehicles", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Corolla")
}

func TestParseSets(t *testing.T) {
	patch, err := parseSets([]string{"price=55.5", "city=Dallas", "featured=true"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"price": 55.5, "city": "Dallas", "featured": true}, patch)

	_, err = parseSets([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseSets(nil)
	assert.Error(t, err)
}
