package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/4-gent/phisherman/internal/app"
	"github.com/4-gent/phisherman/internal/domain"
)

func newTestStore(t *testing.T, idleTTL time.Duration) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionStore(client, idleTTL, zap.NewNop()), mr
}

func seedSession(id, userID, topic string, now func() time.Time) *app.Session {
	questions := []domain.Question{
		{QID: "q0", Text: "one", Options: []string{"a", "b"}, AnswerIndex: 0},
	}
	if now == nil {
		return app.NewSession(id, userID, topic, questions)
	}
	return app.NewSessionWithClock(id, userID, topic, questions, now)
}

func TestSessionStoreLivenessKeys(t *testing.T) {
	store, mr := newTestStore(t, 30*time.Minute)

	if _, created := store.Create(seedSession("s1", "u1", "suspicious_link", nil)); !created {
		t.Fatal("first Create should register the session")
	}

	if got, err := mr.Get("quiz:session:s1"); err != nil || got != "u1" {
		t.Fatalf("session marker = %q (err %v), want %q", got, err, "u1")
	}
	if got, err := mr.Get("quiz:owner:u1:suspicious_link"); err != nil || got != "s1" {
		t.Fatalf("owner marker = %q (err %v), want %q", got, err, "s1")
	}
	if ttl := mr.TTL("quiz:session:s1"); ttl != 30*time.Minute {
		t.Fatalf("session marker TTL = %v, want 30m", ttl)
	}

	store.Remove("s1")
	if mr.Exists("quiz:session:s1") || mr.Exists("quiz:owner:u1:suspicious_link") {
		t.Fatal("Remove should delete both liveness markers")
	}
}

func TestSessionStoreTouchRefreshesTTL(t *testing.T) {
	store, mr := newTestStore(t, 30*time.Minute)

	store.Create(seedSession("s1", "u1", "suspicious_link", nil))

	mr.FastForward(20 * time.Minute)
	store.Touch("s1")

	if ttl := mr.TTL("quiz:session:s1"); ttl != 30*time.Minute {
		t.Fatalf("session marker TTL after Touch = %v, want reset to 30m", ttl)
	}
	if ttl := mr.TTL("quiz:owner:u1:suspicious_link"); ttl != 30*time.Minute {
		t.Fatalf("owner marker TTL after Touch = %v, want reset to 30m", ttl)
	}
}

func TestSessionStoreCreateCollision(t *testing.T) {
	store, _ := newTestStore(t, 30*time.Minute)

	first, _ := store.Create(seedSession("s1", "u1", "suspicious_link", nil))
	second, created := store.Create(seedSession("s2", "u1", "suspicious_link", nil))
	if created {
		t.Fatal("second Create for the same (user, topic) must lose the race")
	}
	if second != first {
		t.Fatal("race loser should receive the existing session")
	}
}

func TestSessionStoreSweep(t *testing.T) {
	current := time.Unix(1700000000, 0)
	clock := func() time.Time { return current }

	store, mr := newTestStore(t, 10*time.Minute)
	store.now = clock

	stale, _ := store.Create(seedSession("stale", "u1", "suspicious_link", clock))
	store.Create(seedSession("fresh", "u2", "suspicious_link", clock))

	current = current.Add(15 * time.Minute)
	store.Touch("fresh")

	if n := store.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, ok := store.Get("stale"); ok {
		t.Fatal("idle session should be evicted")
	}
	if stale.State() != domain.StateExpired {
		t.Fatalf("evicted session state = %s, want %s", stale.State(), domain.StateExpired)
	}
	if mr.Exists("quiz:session:stale") {
		t.Fatal("sweep should delete the liveness marker")
	}
	if !mr.Exists("quiz:session:fresh") {
		t.Fatal("touched session marker should survive")
	}
}
