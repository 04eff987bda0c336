package tests

import (
	"bytes"
	"encoding/json"
	"revx_backend/backend/auth"
	"strings"
	"testing"
)

func TestAuditLogRecordsRequestOutcome(t *testing.T) {
	db := setupTestDb(t)

	auditBuf := new(bytes.Buffer)
	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditBuf),
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	env := setupTestEnvWithProvider(t, db, userAuth)

	user := env.newUser(t, "audited")
	if _, err := user.createProject("audited project", "", nil, nil); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(auditBuf.String()), "\n")
	if len(lines) == 0 {
		t.Fatal("expected audit log entries")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatal(err)
	}

	if entry["username"] != "audited" {
		t.Fatalf("unexpected username in audit entry: %v", entry["username"])
	}
	if entry["method"] != "POST" {
		t.Fatalf("unexpected method in audit entry: %v", entry["method"])
	}
	if entry["url"] != "/project/create" {
		t.Fatalf("unexpected url in audit entry: %v", entry["url"])
	}
	if status, ok := entry["status"].(float64); !ok || int(status) != 201 {
		t.Fatalf("unexpected status in audit entry: %v", entry["status"])
	}
	if _, ok := entry["duration_ms"].(float64); !ok {
		t.Fatalf("missing duration in audit entry: %v", entry["duration_ms"])
	}
}
