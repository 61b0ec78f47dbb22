package redis

import (
	"context"
	"encoding/json"
	"time"

	"persona-ai-chat/internal/domain/model"
)

// ConvoCache keeps recently touched conversations hot so the send path
// does not reload the full message log from Postgres on every turn.
type ConvoCache struct {
	client *Client
	ttl    time.Duration
}

func NewConvoCache(client *Client, ttl time.Duration) *ConvoCache {
	return &ConvoCache{client: client, ttl: ttl}
}

func (c *ConvoCache) Store(ctx context.Context, convo *model.Conversation) error {
	key := "conversation:" + convo.ID
	data, err := json.Marshal(convo)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl)
}

func (c *ConvoCache) Get(ctx context.Context, id string) (*model.Conversation, error) {
	data, err := c.client.Get(ctx, "conversation:"+id)
	if err != nil {
		return nil, err
	}
	var convo model.Conversation
	if err := json.Unmarshal([]byte(data), &convo); err != nil {
		return nil, err
	}
	return &convo, nil
}

func (c *ConvoCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, "conversation:"+id)
}

func (c *ConvoCache) Extend(ctx context.Context, id string) error {
	return c.client.Expire(ctx, "conversation:"+id, c.ttl)
}
