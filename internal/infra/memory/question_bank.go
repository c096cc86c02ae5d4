package memory

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/4-gent/phisherman/internal/domain"
)

// TopicLoader fetches topic content from a backing store (Postgres, files, ...).
type TopicLoader interface {
	// LoadTopic returns domain.ErrUnknownTopic when the topic does not exist.
	LoadTopic(ctx context.Context, topicID string) (domain.Topic, error)
	// LoadAll enumerates every topic; it backs the mixed-question fallback.
	LoadAll(ctx context.Context) ([]domain.Topic, error)
}

// QuestionBank caches topics with a TTL to avoid repeated loader hits and
// produces per-session question snapshots. An unknown topic falls back to a
// shuffled mix drawn from all topics; only an empty bank is an error.
type QuestionBank struct {
	loader TopicLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedTopic
}

type cachedTopic struct {
	topic     domain.Topic
	expiresAt time.Time
}

// mixedKey is the cache/singleflight key for the all-topics fallback set.
const mixedKey = "\x00mixed"

func NewQuestionBank(loader TopicLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTopic),
	}
}

// Questions returns at most count questions for the topic, each carrying a
// positional qid when the content has none. The returned slice is a copy the
// caller may mutate.
func (b *QuestionBank) Questions(ctx context.Context, topicID string, count int) ([]domain.Question, error) {
	topic, err := b.getTopic(ctx, topicID)
	if errors.Is(err, domain.ErrUnknownTopic) {
		topic, err = b.getTopic(ctx, mixedKey)
	}
	if err != nil {
		return nil, err
	}

	questions := make([]domain.Question, len(topic.Questions))
	copy(questions, topic.Questions)
	if topic.ID == mixedKey {
		b.shuffle(questions)
	}
	if count > 0 && len(questions) > count {
		questions = questions[:count]
	}
	if len(questions) == 0 {
		return nil, domain.ErrUnknownTopic
	}
	for i := range questions {
		if questions[i].QID == "" {
			questions[i].QID = fmt.Sprintf("q%d", i)
		}
	}
	return questions, nil
}

func (b *QuestionBank) getTopic(ctx context.Context, topicID string) (domain.Topic, error) {
	now := b.clock()

	b.mu.RLock()
	if entry, ok := b.cache[topicID]; ok && entry.expiresAt.After(now) {
		b.mu.RUnlock()
		return entry.topic, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do(topicID, func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if entry, ok := b.cache[topicID]; ok && entry.expiresAt.After(now) {
			b.mu.RUnlock()
			return entry.topic, nil
		}
		b.mu.RUnlock()

		topic, err := b.load(ctx, topicID)
		if err != nil {
			return domain.Topic{}, err
		}

		b.mu.Lock()
		b.cache[topicID] = cachedTopic{
			topic:     topic,
			expiresAt: now.Add(b.ttlWithJitter()),
		}
		b.mu.Unlock()
		return topic, nil
	})
	if err != nil {
		return domain.Topic{}, err
	}
	return result.(domain.Topic), nil
}

func (b *QuestionBank) load(ctx context.Context, topicID string) (domain.Topic, error) {
	if topicID != mixedKey {
		return b.loader.LoadTopic(ctx, topicID)
	}
	all, err := b.loader.LoadAll(ctx)
	if err != nil {
		return domain.Topic{}, err
	}
	mixed := domain.Topic{ID: mixedKey, Title: "Mixed"}
	for _, t := range all {
		mixed.Questions = append(mixed.Questions, t.Questions...)
	}
	if len(mixed.Questions) == 0 {
		return domain.Topic{}, domain.ErrUnknownTopic
	}
	return mixed, nil
}

func (b *QuestionBank) shuffle(questions []domain.Question) {
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	b.rnd.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticTopicLoader serves topics from an in-memory map (tests/demos and the
// built-in lesson set).
type StaticTopicLoader struct {
	topics map[string]domain.Topic
}

func NewStaticTopicLoader(topics map[string]domain.Topic) *StaticTopicLoader {
	return &StaticTopicLoader{topics: topics}
}

func (l *StaticTopicLoader) LoadTopic(_ context.Context, topicID string) (domain.Topic, error) {
	if topic, ok := l.topics[topicID]; ok {
		return topic, nil
	}
	return domain.Topic{}, domain.ErrUnknownTopic
}

func (l *StaticTopicLoader) LoadAll(_ context.Context) ([]domain.Topic, error) {
	all := make([]domain.Topic, 0, len(l.topics))
	for _, t := range l.topics {
		all = append(all, t)
	}
	return all, nil
}
