package stream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Hub fans messages out to websocket clients by key. Keys are session ids for
// viewers and OwnerKey(id) for the owner's device. With Redis, every broadcast goes
// through pub/sub so clients attached to other instances receive it too.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	subscribed bool
	cancel     context.CancelFunc
	done       chan struct{}
}

type Client struct {
	Key  string
	Send chan []byte
}

const ownerPrefix = "owner:"

func OwnerKey(ownerID string) string {
	return ownerPrefix + ownerID
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
		done:    make(chan struct{}),
	}
	if redisClient == nil {
		close(h.done)
		return h
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	pubsub := redisClient.PSubscribe(ctx, "tracking:*:broadcast")
	if _, err := pubsub.Receive(ctx); err != nil {
		log.WithError(err).Warn("stream: redis subscription failed, broadcasting locally only")
		_ = pubsub.Close()
		close(h.done)
		return h
	}
	h.subscribed = true
	go h.subscribeRedis(ctx, pubsub)
	return h
}

// Close stops the Redis subscription.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
}

func (h *Hub) Register(key string) *Client {
	client := &Client{
		Key:  key,
		Send: make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[key] == nil {
		h.clients[key] = map[*Client]struct{}{}
	}
	h.clients[key][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if keyClients, ok := h.clients[client.Key]; ok {
		delete(keyClients, client)
		if len(keyClients) == 0 {
			delete(h.clients, client.Key)
		}
	}
	close(client.Send)
}

func (h *Hub) Clients(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[key])
}

func (h *Hub) Broadcast(key string, payload []byte) {
	if h.subscribed {
		err := h.redis.Publish(context.Background(), redisChannel(key), payload).Err()
		if err == nil {
			return
		}
		log.WithError(err).Warnf("stream: redis publish on %s failed, delivering locally", key)
	}
	h.deliver(key, payload)
}

// Publish encodes v as JSON and broadcasts it.
func (h *Hub) Publish(key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(key, payload)
	return nil
}

func (h *Hub) deliver(key string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[key] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer close(h.done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if key := keyFromChannel(msg.Channel); key != "" {
				h.deliver(key, []byte(msg.Payload))
			}
		}
	}
}

func redisChannel(key string) string {
	return "tracking:" + key + ":broadcast"
}

func keyFromChannel(ch string) string {
	// tracking:{key}:broadcast
	const prefix = "tracking:"
	const suffix = ":broadcast"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
