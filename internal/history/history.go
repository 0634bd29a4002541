// Package history keeps past reports in an embedded BadgerDB so a run can be
// compared with the previous run of the same campaign.
//
// Reports are stored as zstd-compressed JSON under
//
//	report/<name>/<started-at>/<id>
//
// where started-at is a fixed-width UTC timestamp, so keys of one campaign
// sort chronologically.
package history

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"github.com/wesleyorama2/volley/internal/bench/report"
)

// ErrNotFound is returned when no report matches.
var ErrNotFound = errors.New("report not found in history")

const (
	keyPrefix  = "report/"
	timeLayout = "20060102T150405.000000000Z"
)

// Entry describes a stored report without decoding it.
type Entry struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	Size      int64     `json:"size"`
}

// Store is a report history. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger routes BadgerDB's own logging to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens or creates a history database in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("history directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create history directory %s: %w", dir, err)
	}
	return open(badger.DefaultOptions(dir).WithSyncWrites(true), opts)
}

// OpenInMemory opens a history that lives only as long as the Store.
func OpenInMemory(opts ...Option) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), opts)
}

func open(bopts badger.Options, opts []Option) (*Store, error) {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}

	bopts = bopts.WithNumVersionsToKeep(1)
	if s.logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: s.logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		enc.Close()
		dec.Close()
		return nil, fmt.Errorf("open history database: %w", err)
	}

	s.db, s.enc, s.dec = db, enc, dec
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

// Key returns the history key of a report.
func Key(r *report.Report) string {
	return namePrefix(r.Campaign.Name) +
		r.Campaign.StartedAt.UTC().Format(timeLayout) + "/" +
		url.PathEscape(r.Campaign.ID)
}

func namePrefix(name string) string {
	return keyPrefix + url.PathEscape(name) + "/"
}

// Put stores a report and returns its key.
func (s *Store) Put(r *report.Report) (string, error) {
	if r == nil {
		return "", errors.New("report is required")
	}

	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		return "", err
	}
	value := s.enc.EncodeAll(buf.Bytes(), nil)

	key := Key(r)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return "", fmt.Errorf("store report %s: %w", key, err)
	}
	return key, nil
}

// Get loads the report stored under key.
func (s *Store) Get(key string) (*report.Report, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", key, err)
	}
	return s.decode(key, value)
}

// Latest returns the most recent report of the named campaign.
func (s *Store) Latest(name string) (*report.Report, error) {
	entries, err := s.scan(namePrefix(name), 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no runs of %q", ErrNotFound, name)
	}
	return s.Get(entries[0].Key)
}

// List returns the stored runs of the named campaign, newest first. An
// empty name lists every campaign.
func (s *Store) List(name string) ([]Entry, error) {
	prefix := keyPrefix
	if name != "" {
		prefix = namePrefix(name)
	}
	return s.scan(prefix, 0)
}

// scan walks keys under prefix in reverse key order. limit 0 means no limit.
func (s *Store) scan(prefix string, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(prefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			entry, ok := parseKey(string(item.KeyCopy(nil)))
			if !ok {
				continue
			}
			entry.Size = item.ValueSize()
			entries = append(entries, entry)
			if limit > 0 && len(entries) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	return entries, nil
}

func parseKey(key string) (Entry, bool) {
	parts := strings.Split(strings.TrimPrefix(key, keyPrefix), "/")
	if len(parts) != 3 {
		return Entry{}, false
	}
	name, err := url.PathUnescape(parts[0])
	if err != nil {
		return Entry{}, false
	}
	started, err := time.Parse(timeLayout, parts[1])
	if err != nil {
		return Entry{}, false
	}
	id, err := url.PathUnescape(parts[2])
	if err != nil {
		return Entry{}, false
	}
	return Entry{Key: key, Name: name, ID: id, StartedAt: started}, true
}

func (s *Store) decode(key string, value []byte) (*report.Report, error) {
	data, err := s.dec.DecodeAll(value, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress report %s: %w", key, err)
	}
	r, err := report.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode report %s: %w", key, err)
	}
	return r, nil
}
