package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/ai-governance/auth"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCheckCatalog(t *testing.T) {
	t.Run("valid catalog", func(t *testing.T) {
		path := writeCatalog(t, `
models:
  - key: gpt-4o
    name: GPT-4o
    provider: openai
    type: chat
    input_cost_per_1k: 0.005
    output_cost_per_1k: 0.015
    is_default: true
  - key: claude-haiku
    name: Claude Haiku
    provider: anthropic
    type: chat
    input_cost_per_1k: 0.00025
    output_cost_per_1k: 0.00125
`)
		var out bytes.Buffer
		require.NoError(t, checkCatalog(&out, path))
		assert.Contains(t, out.String(), "gpt-4o")
		assert.Contains(t, out.String(), "(default)")
		assert.Contains(t, out.String(), "2 models OK")
	})

	t.Run("two defaults", func(t *testing.T) {
		path := writeCatalog(t, `
models:
  - {key: a, name: A, provider: openai, type: chat, is_default: true}
  - {key: b, name: B, provider: openai, type: chat, is_default: true}
`)
		err := checkCatalog(&bytes.Buffer{}, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 models as default")
	})

	t.Run("invalid entry", func(t *testing.T) {
		path := writeCatalog(t, `
models:
  - {key: a, name: A, provider: openai, type: hologram}
`)
		assert.Error(t, checkCatalog(&bytes.Buffer{}, path))
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, checkCatalog(&bytes.Buffer{}, filepath.Join(t.TempDir(), "nope.yaml")))
	})
}

func TestIssueToken(t *testing.T) {
	const secret = "cli-test-secret-cli-test-secret-cli"

	t.Run("token validates", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, issueToken(&out, secret, "ai-governance", "ops@example.com", []string{"platform_admin"}, time.Hour))

		claims, err := auth.NewValidator(secret, "ai-governance").ValidateToken(context.Background(), strings.TrimSpace(out.String()))
		require.NoError(t, err)
		assert.Equal(t, "ops@example.com", claims.Subject)
		assert.True(t, claims.HasRole("platform_admin"))
	})

	t.Run("requires a role", func(t *testing.T) {
		assert.Error(t, issueToken(&bytes.Buffer{}, secret, "ai-governance", "ops", nil, time.Hour))
	})

	t.Run("requires a positive ttl", func(t *testing.T) {
		assert.Error(t, issueToken(&bytes.Buffer{}, secret, "ai-governance", "ops", []string{"ai_gateway"}, 0))
	})

	t.Run("requires a secret", func(t *testing.T) {
		assert.Error(t, issueToken(&bytes.Buffer{}, "", "ai-governance", "ops", []string{"ai_gateway"}, time.Hour))
	})
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "init-schema", "check-catalog", "issue-token"})

	t.Run("check-catalog needs a path", func(t *testing.T) {
		root := newRootCmd()
		root.SetArgs([]string{"check-catalog"})
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		assert.Error(t, root.Execute())
	})

	t.Run("issue-token through flags", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "cli-test-secret-cli-test-secret-cli")
		var out bytes.Buffer
		root := newRootCmd()
		root.SetArgs([]string{"issue-token", "edge-gateway", "--role", "ai_gateway", "--ttl", "1h"})
		root.SetOut(&out)
		require.NoError(t, root.Execute())
		assert.Equal(t, 3, len(strings.Split(strings.TrimSpace(out.String()), ".")))
	})
}
