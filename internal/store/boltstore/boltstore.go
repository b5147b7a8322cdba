// Package boltstore — реализация store.Repository поверх bbolt.
// Русский комментарий: Каждая сущность живёт в своём бакете, значения кодируются в JSON.
// bbolt допускает только одну пишущую транзакцию, поэтому мутации сериализованы самой базой.
package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/store"
)

var (
	bucketAntilink = []byte("antilink")
	bucketReplies  = []byte("custom_replies")
	bucketLimits   = []byte("limits")
	bucketProjects = []byte("projects")
	bucketTop      = []byte("top_list")
	bucketMembers  = []byte("members")

	allBuckets = [][]byte{bucketAntilink, bucketReplies, bucketLimits, bucketProjects, bucketTop, bucketMembers}
)

// Store — bbolt-реализация store.Repository.
type Store struct {
	db     *bolt.DB
	logger *zap.Logger
}

// Open открывает (или создаёт) файл базы и все бакеты.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("bolt store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func getJSON(b *bolt.Bucket, key string, v interface{}) (bool, error) {
	raw := b.Get([]byte(key))
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put([]byte(key), raw)
}

func (s *Store) AntilinkEnabled(_ context.Context, groupID string) (bool, error) {
	var enabled bool
	err := s.db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketAntilink), groupID, &enabled)
		return err
	})
	return enabled, err
}

func (s *Store) SetAntilink(_ context.Context, groupID string, enabled bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketAntilink), groupID, enabled)
	})
}

func (s *Store) Replies(_ context.Context, groupID string) (map[string]string, error) {
	replies := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketReplies), groupID, &replies)
		return err
	})
	return replies, err
}

func (s *Store) SetReply(_ context.Context, groupID, trigger, reply string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReplies)
		replies := make(map[string]string)
		if _, err := getJSON(b, groupID, &replies); err != nil {
			return err
		}
		replies[trigger] = reply
		return putJSON(b, groupID, replies)
	})
}

func (s *Store) DeleteReply(_ context.Context, groupID, trigger string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReplies)
		replies := make(map[string]string)
		if _, err := getJSON(b, groupID, &replies); err != nil {
			return err
		}
		if _, ok := replies[trigger]; !ok {
			return store.ErrNotFound
		}
		delete(replies, trigger)
		return putJSON(b, groupID, replies)
	})
}

func (s *Store) HitRateCounter(_ context.Context, userID string, now time.Time, window time.Duration, limit int) (store.RateCounter, bool, error) {
	var (
		result  store.RateCounter
		allowed bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLimits)
		var c store.RateCounter
		if _, err := getJSON(b, userID, &c); err != nil {
			return err
		}
		c.UserID = userID
		result, allowed = store.ApplyRateHit(c, now, window, limit)
		return putJSON(b, userID, result)
	})
	return result, allowed, err
}

func (s *Store) CreateProject(_ context.Context, p store.Project) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		if b.Get([]byte(p.ID)) != nil {
			return store.ErrExists
		}
		err := b.ForEach(func(_, v []byte) error {
			var existing store.Project
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.GroupID == p.GroupID && existing.Link == p.Link {
				return store.ErrDuplicateLink
			}
			return nil
		})
		if err != nil {
			return err
		}
		return putJSON(b, p.ID, p)
	})
}

func (s *Store) Project(_ context.Context, id string) (*store.Project, error) {
	var p store.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketProjects), id, &p)
		if err != nil {
			return err
		}
		if !found {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// scanProjects проходит по всем проектам группы (полный скан бакета).
func scanProjects(tx *bolt.Tx, groupID string, fn func(p store.Project) bool) error {
	return tx.Bucket(bucketProjects).ForEach(func(_, v []byte) error {
		var p store.Project
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		if p.GroupID == groupID && !fn(p) {
			return errStopScan
		}
		return nil
	})
}

var errStopScan = errors.New("stop scan")

func (s *Store) ProjectByLink(_ context.Context, groupID, link string) (*store.Project, error) {
	var found *store.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanProjects(tx, groupID, func(p store.Project) bool {
			if p.Link == link {
				found = &p
				return false
			}
			return true
		})
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (s *Store) Projects(_ context.Context, groupID string) ([]store.Project, error) {
	var out []store.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanProjects(tx, groupID, func(p store.Project) bool {
			out = append(out, p)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	// Ключи в bbolt уже отсортированы по id, сортировка по времени стабильная
	store.SortProjects(out)
	return out, nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		pb := tx.Bucket(bucketProjects)
		var p store.Project
		found, err := getJSON(pb, id, &p)
		if err != nil {
			return err
		}
		if !found {
			return store.ErrNotFound
		}
		if err := pb.Delete([]byte(id)); err != nil {
			return err
		}

		tb := tx.Bucket(bucketTop)
		var entries []store.TopEntry
		if _, err := getJSON(tb, p.GroupID, &entries); err != nil {
			return err
		}
		kept := make([]store.TopEntry, 0, len(entries))
		for _, e := range entries {
			if e.ProjectID != id {
				kept = append(kept, e)
			}
		}
		return putJSON(tb, p.GroupID, kept)
	})
}

func (s *Store) AddTopEntry(_ context.Context, e store.TopEntry, capacity int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var p store.Project
		found, err := getJSON(tx.Bucket(bucketProjects), e.ProjectID, &p)
		if err != nil {
			return err
		}
		if !found || p.GroupID != e.GroupID {
			return store.ErrNotFound
		}

		tb := tx.Bucket(bucketTop)
		var entries []store.TopEntry
		if _, err := getJSON(tb, e.GroupID, &entries); err != nil {
			return err
		}
		for _, existing := range entries {
			if existing.ProjectID == e.ProjectID {
				return store.ErrExists
			}
		}
		if len(entries) >= capacity {
			return store.ErrTopListFull
		}
		return putJSON(tb, e.GroupID, append(entries, e))
	})
}

func (s *Store) RemoveTopEntry(_ context.Context, groupID, projectID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		tb := tx.Bucket(bucketTop)
		var entries []store.TopEntry
		if _, err := getJSON(tb, groupID, &entries); err != nil {
			return err
		}
		for i, e := range entries {
			if e.ProjectID == projectID {
				return putJSON(tb, groupID, append(entries[:i:i], entries[i+1:]...))
			}
		}
		return store.ErrNotFound
	})
}

func (s *Store) TopEntries(_ context.Context, groupID string) ([]store.TopEntry, error) {
	var entries []store.TopEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketTop), groupID, &entries)
		return err
	})
	if err != nil {
		return nil, err
	}
	store.SortTopEntries(entries)
	return entries, nil
}

func (s *Store) TouchMember(_ context.Context, m store.Member) error {
	// Сначала read-транзакция: писатель в bbolt один, не занимаем его без нужды
	var unchanged bool
	err := s.db.View(func(tx *bolt.Tx) error {
		members := make(map[string]store.Member)
		if _, err := getJSON(tx.Bucket(bucketMembers), m.GroupID, &members); err != nil {
			return err
		}
		if prev, ok := members[m.UserID]; ok {
			unchanged = !store.MemberChanged(&prev, m)
		}
		return nil
	})
	if err != nil || unchanged {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMembers)
		members := make(map[string]store.Member)
		if _, err := getJSON(b, m.GroupID, &members); err != nil {
			return err
		}
		members[m.UserID] = m
		return putJSON(b, m.GroupID, members)
	})
}

func (s *Store) Members(_ context.Context, groupID string) ([]store.Member, error) {
	members := make(map[string]store.Member)
	err := s.db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketMembers), groupID, &members)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]store.Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Backup снимает консистентную копию базы через read-транзакцию.
func (s *Store) Backup(_ context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := filepath.Join(dir, "bot-"+time.Now().UTC().Format("20060102-150405")+".db")
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(name, 0o600)
	})
	if err != nil {
		return "", fmt.Errorf("copy bolt db: %w", err)
	}
	return name, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
