package config

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// secretSuffixes mark dot keys whose values are masked when listed.
var secretSuffixes = []string{"_token", "_secret", "_password"}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	leaf := key[strings.LastIndex(key, ".")+1:]
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(leaf, suffix) {
			return true
		}
	}
	return false
}

// Flatten turns nested objects into dot keys, so
// {"server": {"listen_addr": ":8484"}} becomes {"server.listen_addr": ":8484"}.
// Arrays are leaves. Empty objects disappear.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, v := range node {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(k, child)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten. It fails when one key is both a
// value and the parent of another key, such as "server" and "server.listen_addr".
func Unflatten(flat map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	for _, key := range Keys(flat) {
		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			switch next := node[part].(type) {
			case nil:
				child := make(map[string]any)
				node[part] = child
				node = child
			case map[string]any:
				node = next
			default:
				return nil, errors.Errorf("config key %s conflicts with value at %s", key, part)
			}
		}
		leaf := parts[len(parts)-1]
		if _, isParent := node[leaf].(map[string]any); isParent {
			return nil, errors.Errorf("config key %s is a section", key)
		}
		node[leaf] = flat[key]
	}
	return out, nil
}

// Keys returns the keys of flat in sorted order.
func Keys(flat map[string]any) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MaskSecrets copies flat, replacing non-empty secret strings with "***"
// followed by their last four characters.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		s, ok := v.(string)
		if !IsSecretKey(k) || !ok || s == "" {
			out[k] = v
			continue
		}
		out[k] = "***" + s[max(0, len(s)-4):]
	}
	return out
}
