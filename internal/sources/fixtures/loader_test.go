package fixtures

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `---
people:
  - owner_pubkey: 02a11ce
    owner_alias: alice
  - owner_pubkey: 03b0b
    owner_alias: bob
organizations:
  - uuid: org-1
    name: Stakwork
    owner_pubkey: 02a11ce
    members:
      - pubkey: 03b0b
        roles: [manage-bounties, fund]
bounties:
  - id: b-1
    owner_id: 02a11ce
    org_uuid: org-1
    title: Fix the login page
    coding_languages: [Go]
    price: 1500
  - id: b-2
    owner_id: 03b0b
    title: Write docs
    assignee: 02a11ce
login:
  sign_after: 2
  pubkey: 02a11ce
  jwt: ${BOUNTY_TEST_JWT}
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create fixture file: %v", err)
	}
	return path
}

func TestLoaderLoad(t *testing.T) {
	t.Setenv("BOUNTY_TEST_JWT", "tok")
	f, err := NewLoader(writeFixture(t, sampleYAML)).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(f.People) != 2 || len(f.Bounties) != 2 || len(f.Organizations) != 1 {
		t.Fatalf("Load() = %d people, %d bounties, %d orgs", len(f.People), len(f.Bounties), len(f.Organizations))
	}
	if f.Bounties[0].Amount != 1500 {
		t.Errorf("price = %d, want 1500", f.Bounties[0].Amount)
	}
	if f.Login.JWT != "tok" {
		t.Errorf("login.jwt = %q, want the expanded variable", f.Login.JWT)
	}
}

func TestLoaderLoadFileNotFound(t *testing.T) {
	if _, err := NewLoader("/nonexistent/path/fixtures.yaml").Load(); err == nil {
		t.Error("Load() with non-existent file should return error")
	}
}

func TestLoaderLoadInvalidYAML(t *testing.T) {
	if _, err := NewLoader(writeFixture(t, "bounties: [unclosed")).Load(); err == nil {
		t.Error("Load() with invalid YAML should return error")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("BOUNTY_TEST_SET", "value")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "set variable", input: "jwt: ${BOUNTY_TEST_SET}", expected: "jwt: value"},
		{name: "unset variable", input: "jwt: ${BOUNTY_TEST_UNSET}", expected: "jwt: "},
		{name: "no variable", input: "title: plain", expected: "title: plain"},
		{name: "bare dollar untouched", input: "price: $5", expected: "price: $5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(expandVariables([]byte(tt.input))); got != tt.expected {
				t.Errorf("expandVariables() = %q, want %q", got, tt.expected)
			}
		})
	}
}
