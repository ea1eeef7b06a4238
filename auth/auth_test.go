package auth

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/teranos/DMS/am"
	dmstest "github.com/teranos/DMS/internal/testing"
)

func TestMain(m *testing.M) {
	PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := NewStore(dmstest.CreateTestDB(t))
	jwt, err := NewJWTManager(&am.AuthConfig{SecretKey: "test-secret", AccessTokenExpiry: time.Hour})
	require.NoError(t, err)
	return NewService(store, jwt, zaptest.NewLogger(t).Sugar())
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"admin", RoleAdmin, false},
		{" Editor ", RoleEditor, false},
		{"VIEWER", RoleViewer, false},
		{"root", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, RoleAdmin.CanEdit())
	assert.True(t, RoleEditor.CanEdit())
	assert.False(t, RoleViewer.CanEdit())
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("testpassword")
	require.NoError(t, err)
	assert.NotEqual(t, "testpassword", hash)
	assert.True(t, CheckPassword(hash, "testpassword"))
	assert.False(t, CheckPassword(hash, "wrongpassword"))

	_, err = HashPassword("")
	assert.Error(t, err)
}
