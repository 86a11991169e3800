// ABOUTME: Tests for the .env loader: parsing, quoting, comments, and no-clobber behavior.
package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `
# comment line
PLAIN=value
QUOTED="quoted value"
SINGLE='single value'
export EXPORTED=yes
WITH_EQUALS=a=b=c
EXISTING=from-file

malformed line without equals
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	for _, key := range []string{"PLAIN", "QUOTED", "SINGLE", "EXPORTED", "WITH_EQUALS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("EXISTING", "from-env")

	loadDotEnv(path)

	cases := map[string]string{
		"PLAIN":       "value",
		"QUOTED":      "quoted value",
		"SINGLE":      "single value",
		"EXPORTED":    "yes",
		"WITH_EQUALS": "a=b=c",
		"EXISTING":    "from-env", // never clobbered
	}
	for key, want := range cases {
		if got := os.Getenv(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	// Must not panic or error.
	loadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
}
