package memory

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/4-gent/phisherman/internal/app"
	"github.com/4-gent/phisherman/internal/domain"
)

func seedSession(id, userID, topic string, now func() time.Time) *app.Session {
	questions := []domain.Question{
		{QID: "q0", Text: "one", Options: []string{"a", "b"}, AnswerIndex: 0},
	}
	if now == nil {
		return app.NewSession(id, userID, topic, questions)
	}
	return app.NewSessionWithClock(id, userID, topic, questions, now)
}

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore(30*time.Minute, zap.NewNop())

	session, created := store.Create(seedSession("s1", "u1", "suspicious_link", nil))
	if !created {
		t.Fatal("first Create should register the session")
	}

	got, ok := store.Get("s1")
	if !ok || got != session {
		t.Fatalf("Get(s1) = %v, %v; want the created session", got, ok)
	}

	got, ok = store.Lookup("u1", "suspicious_link")
	if !ok || got.ID() != "s1" {
		t.Fatalf("Lookup(u1, suspicious_link) = %v, %v; want s1", got, ok)
	}

	store.Remove("s1")
	if _, ok := store.Get("s1"); ok {
		t.Fatal("Get after Remove should miss")
	}
	if _, ok := store.Lookup("u1", "suspicious_link"); ok {
		t.Fatal("owner index should be cleared with the session")
	}
}

func TestSessionStoreCreateCollision(t *testing.T) {
	store := NewSessionStore(30*time.Minute, zap.NewNop())

	first, created := store.Create(seedSession("s1", "u1", "suspicious_link", nil))
	if !created {
		t.Fatal("first Create should succeed")
	}

	second, created := store.Create(seedSession("s2", "u1", "suspicious_link", nil))
	if created {
		t.Fatal("second Create for the same (user, topic) must lose the race")
	}
	if second != first {
		t.Fatal("race loser should receive the existing session")
	}
	if _, ok := store.Get("s2"); ok {
		t.Fatal("losing session must not be registered")
	}

	// A different topic for the same user is an independent session.
	if _, created := store.Create(seedSession("s3", "u1", "abnormal_email", nil)); !created {
		t.Fatal("same user, different topic should create")
	}
}

func TestSessionStoreSweep(t *testing.T) {
	current := time.Unix(1700000000, 0)
	clock := func() time.Time { return current }

	store := NewSessionStore(10*time.Minute, zap.NewNop())
	store.now = clock

	stale, _ := store.Create(seedSession("stale", "u1", "suspicious_link", clock))
	fresh, _ := store.Create(seedSession("fresh", "u2", "suspicious_link", clock))

	current = current.Add(15 * time.Minute)
	fresh.Touch()

	events, cancel := stale.Subscribe()
	defer cancel()

	if n := store.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, ok := store.Get("stale"); ok {
		t.Fatal("idle session should be evicted")
	}
	if _, ok := store.Get("fresh"); !ok {
		t.Fatal("touched session should survive the sweep")
	}
	if stale.State() != domain.StateExpired {
		t.Fatalf("evicted session state = %s, want %s", stale.State(), domain.StateExpired)
	}
	if _, open := <-events; open {
		t.Fatal("expiry should close subscriber channels")
	}

	// The owner slot frees up for a new run.
	if _, created := store.Create(seedSession("s9", "u1", "suspicious_link", clock)); !created {
		t.Fatal("expired owner slot should accept a new session")
	}
}

func TestSessionStoreSweepKeepsActiveSessions(t *testing.T) {
	current := time.Unix(1700000000, 0)
	clock := func() time.Time { return current }

	store := NewSessionStore(10*time.Minute, zap.NewNop())
	store.now = clock

	store.Create(seedSession("s1", "u1", "suspicious_link", clock))

	current = current.Add(9 * time.Minute)
	if n := store.Sweep(); n != 0 {
		t.Fatalf("Sweep() = %d, want 0 before the TTL elapses", n)
	}
}
