//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pconfig "github.com/orderlane/api/internal/platform/config"
	pfirestore "github.com/orderlane/api/internal/platform/firestore"
)

const emulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type ledgerEntry struct {
	Label   string `firestore:"label"`
	Balance int    `firestore:"balance"`
}

// TestProviderAndRepositoryIntegration drives the provider and the typed
// repository against a dockerised Firestore emulator. Skipped unless docker
// is usable.
func TestProviderAndRepositoryIntegration(t *testing.T) {
	endpoint := startEmulator(t)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "test-project",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if _, err := provider.Client(ctx); err != nil {
		t.Fatalf("expected firestore client, got error: %v", err)
	}

	repo := pfirestore.NewBaseRepository[ledgerEntry](provider, "ledger", nil, nil)

	if _, err := repo.Set(ctx, "entry-1", ledgerEntry{Label: "alpha", Balance: 1}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	doc, err := repo.Get(ctx, "entry-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.ID != "entry-1" || doc.Data.Label != "alpha" || doc.Data.Balance != 1 {
		t.Fatalf("unexpected document: %#v", doc)
	}
	if doc.UpdateTime.IsZero() {
		t.Fatalf("expected update time to be set")
	}

	if _, err := repo.Update(ctx, "entry-1", []firestore.Update{{Path: "balance", Value: 2}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if doc, err = repo.Get(ctx, "entry-1"); err != nil || doc.Data.Balance != 2 {
		t.Fatalf("expected balance=2 after update, got %#v (err=%v)", doc.Data, err)
	}

	docs, err := repo.Query(ctx, nil)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	_, err = repo.Get(ctx, "missing")
	if err == nil {
		t.Fatalf("expected not found error")
	}
	var cls interface{ IsNotFound() bool }
	if !errors.As(err, &cls) || !cls.IsNotFound() {
		t.Fatalf("expected not-found classification, got %v", err)
	}

	err = provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := repo.DocumentRef(ctx, "entry-1")
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var entry ledgerEntry
		if err := snap.DataTo(&entry); err != nil {
			return err
		}
		entry.Balance++
		return tx.Set(ref, entry)
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	if doc, err = repo.Get(ctx, "entry-1"); err != nil || doc.Data.Balance != 3 {
		t.Fatalf("expected balance=3 after txn, got %#v (err=%v)", doc.Data, err)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	err = provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

// startEmulator launches the Firestore emulator in docker, waits for it to
// accept connections, and registers teardown. The test is skipped when
// docker is missing or the daemon is not running.
func startEmulator(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	infoCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(infoCtx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}

	port := freePort(t)
	out, err := exec.Command("docker",
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		emulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, out)
	}
	containerID := strings.TrimSpace(string(out))
	if containerID == "" {
		t.Fatalf("docker returned empty container id")
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = exec.CommandContext(stopCtx, "docker", "stop", containerID).Run()
	})

	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	awaitEndpoint(t, endpoint, 30*time.Second)
	return endpoint
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func awaitEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}
