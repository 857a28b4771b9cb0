package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"helpdesk-workers/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestAddPolicy_CreatesManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "knowledge-base.json")

	require.NoError(t, addPolicy(path, registry.Policy{ID: "vpn_policy", Category: "it", File: "vpn_policy.txt", Priority: 1}))
	require.NoError(t, addPolicy(path, registry.Policy{ID: "leave_policy", Category: "HR", Title: "Leave", File: "leave_policy.txt", Priority: 1}))

	reg, err := registry.LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, reg.Policies, 2)
	assert.Equal(t, "IT", reg.Policies[0].Category)
	assert.Equal(t, "vpn_policy", reg.Policies[0].Title)
}

func TestAddPolicy_RejectsOther(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge-base.json")
	assert.Error(t, addPolicy(path, registry.Policy{ID: "misc", Category: "Other", File: "misc.txt"}))
	assert.Error(t, addPolicy(path, registry.Policy{ID: "legal", Category: "Legal", File: "legal.txt"}))
}

func TestValidateManifestFiles(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "knowledge-base.json")
	writeFile(t, manifest, `{"policies": [
		{"id": "vpn_policy", "category": "IT", "file": "vpn_policy.txt", "priority": 1},
		{"id": "leave_policy", "category": "HR", "file": "leave_policy.txt", "priority": 1}
	]}`)
	writeFile(t, filepath.Join(dir, "vpn_policy.txt"), "Use the company VPN client.")

	_, err := validateManifestFiles(manifest, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leave_policy")

	writeFile(t, filepath.Join(dir, "leave_policy.txt"), "   \n")
	_, err = validateManifestFiles(manifest, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")

	writeFile(t, filepath.Join(dir, "leave_policy.txt"), "12 days of sick leave per year.")
	reg, err := validateManifestFiles(manifest, dir)
	require.NoError(t, err)
	assert.Len(t, reg.Policies, 2)
}

func TestListPolicies_LookupOrder(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "knowledge-base.json")
	writeFile(t, manifest, `{"policies": [
		{"id": "salary_policy", "category": "Finance", "file": "salary_policy.txt", "priority": 2},
		{"id": "reimbursement_policy", "category": "Finance", "file": "reimbursement_policy.txt", "priority": 1},
		{"id": "vpn_policy", "category": "IT", "file": "vpn_policy.txt", "priority": 1}
	]}`)

	var buf bytes.Buffer
	require.NoError(t, listPolicies(&buf, manifest))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "CATEGORY")
	assert.Contains(t, lines[1], "vpn_policy")
	assert.Contains(t, lines[2], "reimbursement_policy")
	assert.Contains(t, lines[3], "salary_policy")
}

func TestHelp(t *testing.T) {
	var buf bytes.Buffer
	help(&buf)

	out := buf.String()
	for _, cmd := range []string{"add", "validate", "list", "index", "help"} {
		assert.Contains(t, out, "  "+cmd+" ")
	}
	assert.True(t, strings.HasSuffix(out, "command.\n"))
	assert.False(t, strings.HasSuffix(out, "\n\n"))
}
