// Package jsonstore хранит всё состояние бота в одном JSON-документе на диске.
// Русский комментарий: Документ читается при старте и целиком перезаписывается после
// каждой мутации. Запись атомарная (temp-файл + rename), мутации сериализованы мьютексом.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/store"
)

type document struct {
	Antilink      map[string]bool                    `json:"antilink"`
	CustomReplies map[string]map[string]string       `json:"customReplies"`
	Limits        map[string]store.RateCounter       `json:"limits"`
	Projects      map[string]store.Project           `json:"projects"`
	TopList       map[string][]store.TopEntry        `json:"topList"`
	Members       map[string]map[string]store.Member `json:"members"`
}

func newDocument() *document {
	d := &document{}
	d.ensure()
	return d
}

// ensure инициализирует nil-карты после загрузки старого файла.
func (d *document) ensure() {
	if d.Antilink == nil {
		d.Antilink = make(map[string]bool)
	}
	if d.CustomReplies == nil {
		d.CustomReplies = make(map[string]map[string]string)
	}
	if d.Limits == nil {
		d.Limits = make(map[string]store.RateCounter)
	}
	if d.Projects == nil {
		d.Projects = make(map[string]store.Project)
	}
	if d.TopList == nil {
		d.TopList = make(map[string][]store.TopEntry)
	}
	if d.Members == nil {
		d.Members = make(map[string]map[string]store.Member)
	}
}

// Store — файловая реализация store.Repository.
type Store struct {
	path   string
	logger *zap.Logger

	mu  sync.Mutex
	doc *document
}

// Open загружает документ из path (создаёт пустой, если файла нет).
func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{path: path, logger: logger, doc: newDocument()}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.flush(); err != nil {
			return nil, err
		}
		logger.Info("json store created", zap.String("path", path))
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read store file: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, s.doc); err != nil {
			return nil, fmt.Errorf("decode store file %s: %w", path, err)
		}
		s.doc.ensure()
	}

	logger.Info("json store loaded",
		zap.String("path", path),
		zap.Int("projects", len(s.doc.Projects)))
	return s, nil
}

// flush пишет документ во временный файл и атомарно переименовывает его.
// Вызывается под s.mu.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// mutate выполняет fn под мьютексом и сохраняет документ, если fn не вернула ошибку.
// Русский комментарий: При ошибке записи документ откатывается к снимку до мутации.
func (s *Store) mutate(fn func(d *document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}

	if err := fn(s.doc); err != nil {
		s.restore(snapshot)
		return err
	}
	if err := s.flush(); err != nil {
		s.restore(snapshot)
		s.logger.Error("failed to persist json store", zap.String("path", s.path), zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) restore(snapshot []byte) {
	d := &document{}
	if err := json.Unmarshal(snapshot, d); err != nil {
		s.logger.Error("failed to restore store snapshot", zap.Error(err))
		return
	}
	d.ensure()
	s.doc = d
}

func (s *Store) AntilinkEnabled(_ context.Context, groupID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Antilink[groupID], nil
}

func (s *Store) SetAntilink(_ context.Context, groupID string, enabled bool) error {
	return s.mutate(func(d *document) error {
		d.Antilink[groupID] = enabled
		return nil
	})
}

func (s *Store) Replies(_ context.Context, groupID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.doc.CustomReplies[groupID]))
	for k, v := range s.doc.CustomReplies[groupID] {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SetReply(_ context.Context, groupID, trigger, reply string) error {
	return s.mutate(func(d *document) error {
		if d.CustomReplies[groupID] == nil {
			d.CustomReplies[groupID] = make(map[string]string)
		}
		d.CustomReplies[groupID][trigger] = reply
		return nil
	})
}

func (s *Store) DeleteReply(_ context.Context, groupID, trigger string) error {
	return s.mutate(func(d *document) error {
		if _, ok := d.CustomReplies[groupID][trigger]; !ok {
			return store.ErrNotFound
		}
		delete(d.CustomReplies[groupID], trigger)
		return nil
	})
}

func (s *Store) HitRateCounter(_ context.Context, userID string, now time.Time, window time.Duration, limit int) (store.RateCounter, bool, error) {
	var (
		result  store.RateCounter
		allowed bool
	)
	err := s.mutate(func(d *document) error {
		c := d.Limits[userID]
		c.UserID = userID
		result, allowed = store.ApplyRateHit(c, now, window, limit)
		d.Limits[userID] = result
		return nil
	})
	return result, allowed, err
}

func (s *Store) CreateProject(_ context.Context, p store.Project) error {
	return s.mutate(func(d *document) error {
		if _, exists := d.Projects[p.ID]; exists {
			return store.ErrExists
		}
		for _, existing := range d.Projects {
			if existing.GroupID == p.GroupID && existing.Link == p.Link {
				return store.ErrDuplicateLink
			}
		}
		d.Projects[p.ID] = p
		return nil
	})
}

func (s *Store) Project(_ context.Context, id string) (*store.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.doc.Projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ProjectByLink(_ context.Context, groupID, link string) (*store.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.doc.Projects {
		if p.GroupID == groupID && p.Link == link {
			p := p
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) Projects(_ context.Context, groupID string) ([]store.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Project
	for _, p := range s.doc.Projects {
		if p.GroupID == groupID {
			out = append(out, p)
		}
	}
	// Порядок map случайный: сначала по id, затем стабильно по времени
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	store.SortProjects(out)
	return out, nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	return s.mutate(func(d *document) error {
		p, ok := d.Projects[id]
		if !ok {
			return store.ErrNotFound
		}
		delete(d.Projects, id)

		entries := d.TopList[p.GroupID]
		kept := entries[:0]
		for _, e := range entries {
			if e.ProjectID != id {
				kept = append(kept, e)
			}
		}
		d.TopList[p.GroupID] = kept
		return nil
	})
}

func (s *Store) AddTopEntry(_ context.Context, e store.TopEntry, capacity int) error {
	return s.mutate(func(d *document) error {
		p, ok := d.Projects[e.ProjectID]
		if !ok || p.GroupID != e.GroupID {
			return store.ErrNotFound
		}
		entries := d.TopList[e.GroupID]
		for _, existing := range entries {
			if existing.ProjectID == e.ProjectID {
				return store.ErrExists
			}
		}
		if len(entries) >= capacity {
			return store.ErrTopListFull
		}
		d.TopList[e.GroupID] = append(entries, e)
		return nil
	})
}

func (s *Store) RemoveTopEntry(_ context.Context, groupID, projectID string) error {
	return s.mutate(func(d *document) error {
		entries := d.TopList[groupID]
		for i, e := range entries {
			if e.ProjectID == projectID {
				d.TopList[groupID] = append(entries[:i:i], entries[i+1:]...)
				return nil
			}
		}
		return store.ErrNotFound
	})
}

func (s *Store) TopEntries(_ context.Context, groupID string) ([]store.TopEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]store.TopEntry(nil), s.doc.TopList[groupID]...)
	store.SortTopEntries(out)
	return out, nil
}

func (s *Store) TouchMember(_ context.Context, m store.Member) error {
	s.mu.Lock()
	prev, ok := s.doc.Members[m.GroupID][m.UserID]
	s.mu.Unlock()
	if ok && !store.MemberChanged(&prev, m) {
		return nil
	}

	return s.mutate(func(d *document) error {
		if d.Members[m.GroupID] == nil {
			d.Members[m.GroupID] = make(map[string]store.Member)
		}
		d.Members[m.GroupID][m.UserID] = m
		return nil
	})
}

func (s *Store) Members(_ context.Context, groupID string) ([]store.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Member, 0, len(s.doc.Members[groupID]))
	for _, m := range s.doc.Members[groupID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Backup копирует текущий документ в dir.
func (s *Store) Backup(_ context.Context, dir string) (string, error) {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := filepath.Join(dir, "db-"+time.Now().UTC().Format("20060102-150405")+".json")
	if err := writeFileAtomic(name, data); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Store) Close() error {
	return nil
}
