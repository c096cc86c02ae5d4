package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/4-gent/phisherman/internal/domain"
	"github.com/4-gent/phisherman/internal/infra/memory"
)

// QuestionBank caches topic content in Redis (one JSON blob per topic) and
// falls back to a loader on cache miss. Cached as:
//
//	SET quiz:topic:{topicID} {topic JSON} EX ttl
//
// The mixed fallback set is cached under its own key so the loader is not
// re-enumerated on every unknown-topic join.
type QuestionBank struct {
	client *redis.Client
	loader memory.TopicLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

const mixedTopicID = "__mixed__"

func NewQuestionBank(client *redis.Client, loader memory.TopicLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Questions implements app.QuestionBank with the same snapshot semantics as
// the in-memory bank: authored order for known topics, shuffled mix for
// unknown ones, positional qids when the content has none.
func (b *QuestionBank) Questions(ctx context.Context, topicID string, count int) ([]domain.Question, error) {
	topic, err := b.getTopic(ctx, topicID)
	if errors.Is(err, domain.ErrUnknownTopic) {
		topic, err = b.getTopic(ctx, mixedTopicID)
	}
	if err != nil {
		return nil, err
	}

	questions := make([]domain.Question, len(topic.Questions))
	copy(questions, topic.Questions)
	if topic.ID == mixedTopicID {
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
	key := topicKey(topicID)

	if raw, err := b.client.Get(ctx, key).Bytes(); err == nil {
		var topic domain.Topic
		if err := json.Unmarshal(raw, &topic); err == nil {
			return topic, nil
		}
		// Corrupt cache entry: fall through and rebuild it.
	}

	result, err, _ := b.sf.Do(topicID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := b.client.Get(ctx, key).Bytes(); err == nil {
			var topic domain.Topic
			if err := json.Unmarshal(raw, &topic); err == nil {
				return topic, nil
			}
		}

		topic, err := b.load(ctx, topicID)
		if err != nil {
			return domain.Topic{}, err
		}

		if raw, err := json.Marshal(topic); err == nil {
			_ = b.client.Set(ctx, key, raw, b.ttlWithJitter()).Err()
		}
		return topic, nil
	})
	if err != nil {
		return domain.Topic{}, err
	}
	return result.(domain.Topic), nil
}

func (b *QuestionBank) load(ctx context.Context, topicID string) (domain.Topic, error) {
	if topicID != mixedTopicID {
		return b.loader.LoadTopic(ctx, topicID)
	}
	all, err := b.loader.LoadAll(ctx)
	if err != nil {
		return domain.Topic{}, err
	}
	mixed := domain.Topic{ID: mixedTopicID, Title: "Mixed"}
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
	jitterMax := int64(b.ttl) / 10
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

func topicKey(topicID string) string {
	return "quiz:topic:" + topicID
}
