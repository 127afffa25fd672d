package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetServer(t *testing.T) {
	// Save original values
	origServer := server
	origEnv := os.Getenv("AGENTBOOK_SERVER")
	defer func() {
		server = origServer
		os.Setenv("AGENTBOOK_SERVER", origEnv)
	}()

	t.Run("flag takes precedence", func(t *testing.T) {
		server = "http://flag-server:8080"
		os.Setenv("AGENTBOOK_SERVER", "http://env-server:8080")
		assert.Equal(t, "http://flag-server:8080", getServer())
	})

	t.Run("env var when no flag", func(t *testing.T) {
		server = ""
		os.Setenv("AGENTBOOK_SERVER", "http://env-server:8080")
		assert.Equal(t, "http://env-server:8080", getServer())
	})

	t.Run("default when nothing set", func(t *testing.T) {
		server = ""
		os.Unsetenv("AGENTBOOK_SERVER")
		assert.Equal(t, "http://localhost:8080", getServer())
	})
}

func TestGetAPIKey(t *testing.T) {
	// Save original values
	origKey := apiKey
	origEnv := os.Getenv("AGENTBOOK_API_KEY")
	defer func() {
		apiKey = origKey
		os.Setenv("AGENTBOOK_API_KEY", origEnv)
	}()

	t.Run("flag takes precedence", func(t *testing.T) {
		apiKey = "flag-key"
		os.Setenv("AGENTBOOK_API_KEY", "env-key")
		assert.Equal(t, "flag-key", getAPIKey())
	})

	t.Run("env var when no flag", func(t *testing.T) {
		apiKey = ""
		os.Setenv("AGENTBOOK_API_KEY", "env-key")
		assert.Equal(t, "env-key", getAPIKey())
	})

	t.Run("empty when nothing set", func(t *testing.T) {
		apiKey = ""
		os.Unsetenv("AGENTBOOK_API_KEY")
		// Point HOME at an empty temp dir so no stored credential leaks in
		tmpDir := t.TempDir()
		origHome := os.Getenv("HOME")
		defer os.Setenv("HOME", origHome)
		os.Setenv("HOME", tmpDir)

		assert.Equal(t, "", getAPIKey())
	})
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"ab_key_abcdefghijklmnop", "ab_key_a...mnop"},
		{"short", "****"},
		{"12345678", "****"},
		{"123456789", "12345678...6789"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.expected, maskAPIKey(tt.key))
		})
	}
}

func TestTruncateAddress(t *testing.T) {
	tests := []struct {
		addr     string
		expected string
	}{
		{"0x1234567890abcdef1234567890abcdef12345678", "0x12345678...5678"},
		{"0x1234", "0x1234"},
		{"short", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.expected, truncateAddress(tt.addr))
		})
	}
}

func TestCredentialsFilePath(t *testing.T) {
	path := credentialsFilePath()
	assert.Contains(t, path, ".agentbook")
	assert.Contains(t, path, "credentials")
}

func TestStatusMarker(t *testing.T) {
	assert.Equal(t, "✅", statusMarker("verified"))
	assert.Equal(t, "❌", statusMarker("failed"))
	assert.Equal(t, "⏳", statusMarker("pending"))
}

func TestLoadProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)
	os.Chdir(tmpDir)

	t.Run("no config file", func(t *testing.T) {
		_, _, err := loadProjectConfig()
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("valid agentbook.toml", func(t *testing.T) {
		content := `server = "http://test:8080"
agent = "deploy-bot"
chain = "bsc-testnet"
source_dir = "src"
`
		require.NoError(t, os.WriteFile("agentbook.toml", []byte(content), 0644))
		defer os.Remove("agentbook.toml")

		config, path, err := loadProjectConfig()
		require.NoError(t, err)
		assert.Equal(t, "agentbook.toml", path)
		assert.Equal(t, "http://test:8080", config.Server)
		assert.Equal(t, "deploy-bot", config.Agent)
		assert.Equal(t, "bsc-testnet", config.Chain)
		assert.Equal(t, "src", config.SourceDir)
	})

	t.Run("ab.toml fallback", func(t *testing.T) {
		content := `server = "http://short:8080"
`
		require.NoError(t, os.WriteFile("ab.toml", []byte(content), 0644))
		defer os.Remove("ab.toml")

		config, path, err := loadProjectConfig()
		require.NoError(t, err)
		assert.Equal(t, "ab.toml", path)
		assert.Equal(t, "http://short:8080", config.Server)
	})

	t.Run("invalid TOML", func(t *testing.T) {
		require.NoError(t, os.WriteFile("agentbook.toml", []byte("server = [broken"), 0644))
		defer os.Remove("agentbook.toml")

		_, _, err := loadProjectConfig()
		assert.Error(t, err)
	})
}

func TestCredentialStorage(t *testing.T) {
	// Point HOME at a temp dir so real credentials are untouched
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	defer os.Setenv("HOME", origHome)
	os.Setenv("HOME", tmpDir)

	t.Run("save and load credential", func(t *testing.T) {
		err := saveCredential("http://test:8080", "test-api-key")
		require.NoError(t, err)

		key := getCredential("http://test:8080")
		assert.Equal(t, "test-api-key", key)
	})

	t.Run("load non-existent credential", func(t *testing.T) {
		key := getCredential("http://nonexistent:8080")
		assert.Equal(t, "", key)
	})

	t.Run("credentials file has secure permissions", func(t *testing.T) {
		require.NoError(t, saveCredential("http://perms:8080", "key"))

		info, err := os.Stat(filepath.Join(tmpDir, ".agentbook", "credentials"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("multiple servers accumulate", func(t *testing.T) {
		require.NoError(t, saveCredential("http://server1:8080", "key1"))
		require.NoError(t, saveCredential("http://server2:8080", "key2"))

		creds, err := loadCredentials()
		require.NoError(t, err)
		assert.Equal(t, "key1", creds.Servers["http://server1:8080"].APIKey)
		assert.Equal(t, "key2", creds.Servers["http://server2:8080"].APIKey)
	})
}
