package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mitahi-1810/stream-mates/config"
	"github.com/Mitahi-1810/stream-mates/internal/models"
)

const roomKeyPrefix = "room:"

// RedisStore persists room documents as JSON values keyed by room code, with
// a TTL standing in for the retention-window sweep.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration

	// Serializes read-modify-write cycles on room documents. Documents are
	// small and writes are rare (join/leave/close), so a process-wide mutex
	// is enough; the live registry is the source of truth mid-session.
	mu sync.Mutex
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg config.RedisConfig, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func roomKey(code string) string { return roomKeyPrefix + code }

func (s *RedisStore) InsertRoom(ctx context.Context, doc models.RoomDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal room document: %w", err)
	}

	ok, err := s.client.SetNX(ctx, roomKey(doc.Code), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("store room %s: %w", doc.Code, err)
	}
	if !ok {
		return ErrDuplicateCode
	}
	return nil
}

func (s *RedisStore) FindRoomByCode(ctx context.Context, code string) (*models.RoomDocument, error) {
	data, err := s.client.Get(ctx, roomKey(code)).Result()
	if err == redis.Nil {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch room %s: %w", code, err)
	}

	var doc models.RoomDocument
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("parse room %s: %w", code, err)
	}
	return &doc, nil
}

func (s *RedisStore) AddUser(ctx context.Context, code string, user models.User) (*models.RoomDocument, error) {
	var updated *models.RoomDocument
	err := s.mutate(ctx, code, func(doc *models.RoomDocument) error {
		if !doc.IsActive {
			return ErrRoomClosed
		}
		for _, u := range doc.Users {
			if u.ID == user.ID {
				updated = doc
				return nil // already present, keep the member set duplicate-free
			}
		}
		doc.Users = append(doc.Users, user)
		// The persisted host slot is claimed once; live host churn is the
		// registry's concern.
		if doc.HostID == "" && user.Role == models.RoleHost {
			doc.HostID = user.ID
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *RedisStore) RemoveUser(ctx context.Context, code string, userID string) error {
	return s.mutate(ctx, code, func(doc *models.RoomDocument) error {
		users := doc.Users[:0]
		for _, u := range doc.Users {
			if u.ID != userID {
				users = append(users, u)
			}
		}
		doc.Users = users
		return nil
	})
}

func (s *RedisStore) CloseRoom(ctx context.Context, code string) error {
	return s.mutate(ctx, code, func(doc *models.RoomDocument) error {
		doc.IsActive = false
		return nil
	})
}

// mutate runs a read-modify-write cycle on one room document, preserving the
// key's remaining TTL.
func (s *RedisStore) mutate(ctx context.Context, code string, fn func(*models.RoomDocument) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.FindRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal room document: %w", err)
	}
	if err := s.client.Set(ctx, roomKey(code), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("update room %s: %w", code, err)
	}
	return nil
}
