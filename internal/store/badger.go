// Package store keeps the song library and converts songs to and from
// Standard MIDI Files.
package store

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/icco/chordcoach/internal/music"
)

var ErrNotFound = errors.New("song not found")

const songPrefix = "song/"

// Badger is a song library in a Badger database. Values are gob-encoded
// music.Song under song/<id>.
type Badger struct {
	DB  *badger.DB
	log *slog.Logger
}

// Open opens or creates the library at path.
func Open(path string, logger *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(path).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	return open(opts, logger)
}

// OpenInMemory opens a library that lives only as long as the process.
func OpenInMemory(logger *slog.Logger) (*Badger, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil), logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := badger.Open(opts)
	if err != nil {
		logger.Error("store: failed to open library", slog.String("path", opts.Dir), slog.Any("error", err))
		return nil, fmt.Errorf("database error: %w", err)
	}
	logger.Debug("store: library opened", slog.String("path", opts.Dir))
	return &Badger{DB: db, log: logger}, nil
}

func songKey(id string) []byte { return []byte(songPrefix + id) }

func encodeSong(s music.Song) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("song encode error: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSong(b []byte) (music.Song, error) {
	var s music.Song
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return music.Song{}, fmt.Errorf("song decode error: %w", err)
	}
	return s, nil
}

// GetSong loads one song.
func (b *Badger) GetSong(id string) (music.Song, error) {
	var song music.Song
	err := b.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(songKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			song, err = decodeSong(val)
			return err
		})
	})
	return song, err
}

// ListSongs returns every song ordered by title.
func (b *Badger) ListSongs() ([]music.Song, error) {
	var songs []music.Song
	err := b.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(songPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				s, err := decodeSong(val)
				if err != nil {
					return err
				}
				songs = append(songs, s)
				return nil
			})
			if err != nil {
				b.log.Error("store: unreadable song", slog.String("key", string(it.Item().Key())), slog.Any("error", err))
				return fmt.Errorf("item data error: %w", err)
			}
		}
		return nil
	})
	sort.SliceStable(songs, func(i, j int) bool {
		return strings.ToLower(songs[i].Title) < strings.ToLower(songs[j].Title)
	})
	return songs, err
}

// PutSong validates and stores s, assigning a new ID when s has none. It
// returns the stored song.
func (b *Badger) PutSong(s music.Song) (music.Song, error) {
	if err := s.Validate(); err != nil {
		return music.Song{}, err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	v, err := encodeSong(s)
	if err != nil {
		return music.Song{}, err
	}
	err = b.DB.Update(func(txn *badger.Txn) error {
		return txn.Set(songKey(s.ID), v)
	})
	if err != nil {
		return music.Song{}, fmt.Errorf("write error: %w", err)
	}
	b.log.Info("store: song saved", slog.String("id", s.ID), slog.String("title", s.Title))
	return s, nil
}

// DeleteSong removes a song.
func (b *Badger) DeleteSong(id string) error {
	return b.DB.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(songKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		} else if err != nil {
			return err
		}
		return txn.Delete(songKey(id))
	})
}

func (b *Badger) Close() error {
	return b.DB.Close()
}
