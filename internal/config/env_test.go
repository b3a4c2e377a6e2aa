package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	content := `# Test env file
MEDICAMENTA_TEST_KEY1=value1
MEDICAMENTA_TEST_KEY2="quoted value"
export MEDICAMENTA_TEST_KEY3='single quoted'
# Comment
not a pair
MEDICAMENTA_TEST_KEY4=a=b
`
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	for _, k := range []string{"MEDICAMENTA_TEST_KEY1", "MEDICAMENTA_TEST_KEY2", "MEDICAMENTA_TEST_KEY3", "MEDICAMENTA_TEST_KEY4"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if err := loadEnvFile(envFile); err != nil {
		t.Fatalf("loadEnvFile failed: %v", err)
	}

	expected := map[string]string{
		"MEDICAMENTA_TEST_KEY1": "value1",
		"MEDICAMENTA_TEST_KEY2": "quoted value",
		"MEDICAMENTA_TEST_KEY3": "single quoted",
		"MEDICAMENTA_TEST_KEY4": "a=b",
	}
	for k, want := range expected {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s = %q, expected %q", k, got, want)
		}
	}
}

func TestLoadEnvFile_DoesNotOverride(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	if err := os.WriteFile(envFile, []byte(`MEDICAMENTA_EXISTING=new_value`), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MEDICAMENTA_EXISTING", "original_value")

	if err := loadEnvFile(envFile); err != nil {
		t.Fatalf("loadEnvFile failed: %v", err)
	}

	if os.Getenv("MEDICAMENTA_EXISTING") != "original_value" {
		t.Error("loadEnvFile should not override existing env vars")
	}
}

func TestResolveEnvWithAliases(t *testing.T) {
	const canonical = "MEDICAMENTA_SECURITY_JWT_SECRET"
	t.Setenv(canonical, "")
	t.Setenv("MEDICAMENTA_JWT_SECRET", "")
	t.Setenv("JWT_SECRET", "")

	if result := ResolveEnvWithAliases(canonical); result != "" {
		t.Error("Expected empty when no keys set")
	}

	t.Setenv("JWT_SECRET", "generic")
	if result := ResolveEnvWithAliases(canonical); result != "generic" {
		t.Errorf("Expected generic from alias, got %s", result)
	}

	t.Setenv("MEDICAMENTA_JWT_SECRET", "short")
	if result := ResolveEnvWithAliases(canonical); result != "short" {
		t.Errorf("Expected short from first alias, got %s", result)
	}

	t.Setenv(canonical, "canonical")
	if result := ResolveEnvWithAliases(canonical); result != "canonical" {
		t.Errorf("Expected canonical, got %s", result)
	}
}

func TestAliasKeys_CoverAliases(t *testing.T) {
	for canonical := range envAliases {
		if _, ok := aliasKeys[canonical]; !ok {
			t.Errorf("alias %s has no config key", canonical)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"~", home},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%s) = %s, expected %s", test.input, result, test.expected)
		}
	}
}
