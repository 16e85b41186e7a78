//go:build integration
// +build integration

package settings

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/sunshine-wear/internal/testhelpers"
)

// TestMemcachedBackend_RoundTrip_Integration verifies preferences survive a
// reopen when memcached is available.
func TestMemcachedBackend_RoundTrip_Integration(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	b := NewMemcachedBackend(cfg.MemcachedAddr, 500*time.Millisecond, 2)
	defer b.Close()

	ctx := context.Background()
	if err := b.Ping(ctx); err != nil {
		t.Skipf("memcached not reachable: %v", err)
	}

	file := testhelpers.UniqueName("watch")
	p, err := Open(ctx, b, file, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := p.Edit().PutString("pref_high_temp", "21°").PutInt("pref_icon_resource", 7).Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	reopened, err := Open(ctx, b, file, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got, _ := reopened.GetString("pref_high_temp", ""); got != "21°" {
		t.Errorf("GetString() = %q, want 21°", got)
	}
	if got, _ := reopened.GetInt("pref_icon_resource", -1); got != 7 {
		t.Errorf("GetInt() = %d, want 7", got)
	}
}
