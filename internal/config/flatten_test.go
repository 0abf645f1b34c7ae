package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	got := Flatten(map[string]any{
		"server": map[string]any{
			"listen_addr":     ":8484",
			"allowed_origins": []any{"http://localhost:5173"},
		},
		"a":         map[string]any{"b": map[string]any{"c": "deep"}},
		"empty":     map[string]any{},
		"log_level": "info",
	})
	require.Equal(t, map[string]any{
		"server.listen_addr":     ":8484",
		"server.allowed_origins": []any{"http://localhost:5173"},
		"a.b.c":                  "deep",
		"log_level":              "info",
	}, got)
}

func TestUnflattenRoundTrip(t *testing.T) {
	original := map[string]any{
		"data_dir": "/home/test/.composablestudio",
		"server": map[string]any{
			"listen_addr": "127.0.0.1:8484",
			"auth_token":  "tok-abcdef",
		},
		"context": map[string]any{"max_context_tokens": 8000.0},
	}

	restored, err := Unflatten(Flatten(original))
	require.NoError(t, err)
	require.Equal(t, original, restored)
}

func TestUnflattenConflicts(t *testing.T) {
	_, err := Unflatten(map[string]any{"server": "x", "server.listen_addr": ":1"})
	require.Error(t, err)

	_, err = Unflatten(map[string]any{"a.b": 1, "a.b.c": 2})
	require.Error(t, err)
}

func TestKeysSorted(t *testing.T) {
	require.Equal(t, []string{"a", "b.a", "b.c"}, Keys(map[string]any{"b.c": 1, "a": 2, "b.a": 3}))
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"long", "tok-abcdef1234", "***1234"},
		{"exactly four", "abcd", "***abcd"},
		{"short", "ab", "***ab"},
		{"empty", "", ""},
		{"not a string", 42.0, 42.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskSecrets(map[string]any{
				"server.auth_token":  tt.value,
				"server.listen_addr": ":8484",
			})
			require.Equal(t, tt.want, got["server.auth_token"])
			require.Equal(t, ":8484", got["server.listen_addr"])
		})
	}
}

func TestIsSecretKey(t *testing.T) {
	require.True(t, IsSecretKey("server.auth_token"))
	require.True(t, IsSecretKey("webhook_secret"))
	require.False(t, IsSecretKey("server.listen_addr"))
	require.False(t, IsSecretKey("context.max_context_tokens"))
}
