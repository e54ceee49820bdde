package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "remindbot/pkg/logx"
)

const fileCompactEvery = 500

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.recipients.snapshot.json (periodic snapshot)
//   - <prefix>.recipients.journal.jsonl (append-only journal)
//   - <prefix>.fires.jsonl              (append-only JSON Lines)
//
// The journal is compacted into the snapshot on open and every
// fileCompactEvery writes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	fires        *os.File
	members      map[string]struct{}
	writes       int
}

type journalRecord struct {
	Op string `json:"op"` // "add" | "del"
	ID string `json:"id"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".recipients.snapshot.json"
	journalPath := prefix + ".recipients.journal.jsonl"
	firesPath := prefix + ".fires.jsonl"

	members := map[string]struct{}{}
	if err := loadSnapshot(snapPath, members); err != nil && !errors.Is(err, os.ErrNotExist) {
		// Keep the bad file; the compaction below rewrites snapPath.
		aside := snapPath + ".corrupt"
		if rerr := os.Rename(snapPath, aside); rerr != nil {
			return nil, fmt.Errorf("recipient snapshot unreadable (%v) and could not be moved aside: %w", err, rerr)
		}
		log.Warn("recipient snapshot unreadable; moved aside, starting from journal",
			logx.String("path", snapPath),
			logx.String("moved_to", aside),
			logx.Err(err),
		)
	}
	if err := replayJournal(journalPath, members); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	ff, err := os.OpenFile(firesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		fires:        ff,
		members:      members,
	}
	s.mu.Lock()
	if err := s.compactLocked(); err != nil {
		log.Debug("recipient compact failed", logx.Err(err))
	}
	s.mu.Unlock()
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}
	if s.fires != nil {
		errs = append(errs, s.fires.Close())
		s.fires = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) LoadRecipients(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fileStore) PutRecipient(ctx context.Context, id string) error {
	return s.apply(ctx, journalRecord{Op: "add", ID: id})
}

func (s *fileStore) DeleteRecipient(ctx context.Context, id string) error {
	return s.apply(ctx, journalRecord{Op: "del", ID: id})
}

func (s *fileStore) apply(ctx context.Context, rec journalRecord) error {
	_ = ctx
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return errors.New("recipient journal closed")
	}
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return err
	}
	applyRecord(s.members, rec)
	s.writes++
	if s.writes%fileCompactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("recipient compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecordFire(ctx context.Context, r FireRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fires == nil {
		return errors.New("fire log closed")
	}
	return json.NewEncoder(s.fires).Encode(r)
}

func (s *fileStore) compactLocked() error {
	ids := make([]string, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(ids); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, out map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var ids []string
	if err := json.NewDecoder(f).Decode(&ids); err != nil {
		return err
	}
	for _, id := range ids {
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return nil
}

func replayJournal(path string, out map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// A torn last line after a crash is expected; skip it.
			continue
		}
		applyRecord(out, r)
	}
	return sc.Err()
}

func applyRecord(m map[string]struct{}, r journalRecord) {
	if r.ID == "" {
		return
	}
	switch r.Op {
	case "add":
		m[r.ID] = struct{}{}
	case "del":
		delete(m, r.ID)
	}
}
