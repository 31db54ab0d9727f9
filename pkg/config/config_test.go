package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/trove-io/trove/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trove.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
sid: 11111111-1111-1111-1111-111111111111
address: tcp://localhost:3396
storage:
  data_space: /var/lib/trove/data
  meta_space: /var/lib/trove/meta
  config_space: /var/lib/trove/config
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Flow.BufferCount != 4 || cfg.Flow.BufferSize != 1<<20 {
		t.Fatalf("unexpected flow defaults: %+v", cfg.Flow)
	}
	if cfg.Flow.Proto != types.FlowProtoBmiTrove || cfg.Flow.Encoding != types.EncodingDirect {
		t.Fatalf("unexpected capability defaults: %+v", cfg.Flow)
	}
}

func TestLoadRejectsDuplicateFSID(t *testing.T) {
	path := writeConfig(t, `
sid: 11111111-1111-1111-1111-111111111111
storage:
  data_space: /var/lib/trove/data
  meta_space: /var/lib/trove/meta
  config_space: /var/lib/trove/config
collections:
  - name: fs-a
    fs_id: 9
    handle_start: 0
    handle_end: 999
  - name: fs-b
    fs_id: 9
    handle_start: 1000
    handle_end: 1999
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for duplicate fs_id")
	}
}

func TestLoadRejectsUnknownRole(t *testing.T) {
	path := writeConfig(t, `
sid: 11111111-1111-1111-1111-111111111111
storage:
  data_space: /var/lib/trove/data
  meta_space: /var/lib/trove/meta
  config_space: /var/lib/trove/config
roles:
  - role: BOGUS
    fs_id: 9
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
