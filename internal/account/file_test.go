package account

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileStore_CSV(t *testing.T) {
	path := writeFile(t, "accounts.csv", "name,address,private_key\nmain,"+testAddress+","+testKey+"\n")

	accts, err := (&FileStore{Path: path}).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(accts) != 1 {
		t.Fatalf("len = %d, want 1", len(accts))
	}
	if accts[0].Name != "main" {
		t.Errorf("Name = %q, want main", accts[0].Name)
	}
	if accts[0].Address != testAddress {
		t.Errorf("Address = %q, want %s", accts[0].Address, testAddress)
	}
	if _, err := accts[0].PrivateKey(); err != nil {
		t.Errorf("PrivateKey: %v", err)
	}
}

func TestFileStore_JSONDerivesAddress(t *testing.T) {
	path := writeFile(t, "accounts.json", `[{"name": "derived", "private_key": "`+testKey+`"}]`)

	accts, err := (&FileStore{Path: path}).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(accts) != 1 || accts[0].Address != testAddress {
		t.Fatalf("accounts = %+v, want one with address %s", accts, testAddress)
	}
}

func TestFileStore_YAMLWithEnv(t *testing.T) {
	t.Setenv("PHAROS_TEST_KEY", testKey)
	path := writeFile(t, "accounts.yaml", `
- name: env
  address: `+testAddress+`
  private_key: ${env:PHAROS_TEST_KEY}
`)

	accts, err := (&FileStore{Path: path}).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(accts) != 1 {
		t.Fatalf("len = %d, want 1", len(accts))
	}
	if _, err := accts[0].PrivateKey(); err != nil {
		t.Errorf("PrivateKey: %v", err)
	}
}

func TestFileStore_MissingEnv(t *testing.T) {
	path := writeFile(t, "accounts.yaml", "- private_key: ${env:PHAROS_UNSET_KEY_FOR_TEST}\n")

	_, err := (&FileStore{Path: path}).List(context.Background())
	if err == nil || !strings.Contains(err.Error(), "PHAROS_UNSET_KEY_FOR_TEST") {
		t.Fatalf("err = %v, want missing env error", err)
	}
}

func TestFileStore_Empty(t *testing.T) {
	for _, name := range []string{"empty.csv", "empty.json", "empty.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, "")
			accts, err := (&FileStore{Path: path}).List(context.Background())
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(accts) != 0 {
				t.Errorf("len = %d, want 0", len(accts))
			}
		})
	}
}

func TestFileStore_MissingKey(t *testing.T) {
	path := writeFile(t, "accounts.csv", "name,address\nnokey,"+testAddress+"\n")

	_, err := (&FileStore{Path: path}).List(context.Background())
	if err == nil || !strings.Contains(err.Error(), "row 1") {
		t.Fatalf("err = %v, want row 1 error", err)
	}
}

func TestFileStore_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, "accounts.txt", "whatever")

	if _, err := (&FileStore{Path: path}).List(context.Background()); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestFileStore_FileNotFound(t *testing.T) {
	if _, err := (&FileStore{Path: "/nonexistent/accounts.csv"}).List(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewFileStore_RelativePath(t *testing.T) {
	s := NewFileStore("accounts.csv", "/etc/pharos")
	if s.Path != filepath.Join("/etc/pharos", "accounts.csv") {
		t.Errorf("Path = %q", s.Path)
	}

	s = NewFileStore("/abs/accounts.csv", "/etc/pharos")
	if s.Path != "/abs/accounts.csv" {
		t.Errorf("Path = %q, want absolute path untouched", s.Path)
	}
}
