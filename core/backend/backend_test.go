package backend

import (
	"testing"

	"github.com/wispberry-tech/sarao-auth/core"
	"github.com/wispberry-tech/sarao-auth/credentials"
)

func mustCreateTestSession(t *testing.T, b core.Backend) *core.AuthSession {
	t.Helper()

	creds, err := credentials.NewStore(credentials.Config{Storage: credentials.NewMemoryStorage()})
	if err != nil {
		t.Fatalf("Failed to create credential store: %v", err)
	}
	auth, err := core.NewAuthSession(core.Config{Credentials: creds, Backend: b})
	if err != nil {
		t.Fatalf("Failed to create auth session: %v", err)
	}
	auth.Init()
	t.Cleanup(auth.Dispose)
	return auth
}
