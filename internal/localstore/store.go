package localstore

import (
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	bucketDrafts    = "checkout_drafts"
	bucketDismissed = "low_stock_dismissed"
	dayLayout       = "2006-01-02"
)

// Store is a per user key value store backed by a local bbolt file
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open local store %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketDrafts, bucketDismissed} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init local store buckets")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func userKey(userID int64) []byte {
	return []byte(strconv.FormatInt(userID, 10))
}

func (s *Store) put(bucket string, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put(key, data)
	})
}

func (s *Store) get(bucket string, key []byte, v interface{}) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket([]byte(bucket)).Get(key); raw != nil {
			data = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil || data == nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

func (s *Store) delete(bucket string, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete(key)
	})
}

type draftEnvelope struct {
	SavedAt time.Time           `json:"saved_at"`
	Payload jsoniter.RawMessage `json:"payload"`
}

// SaveDraft stores the draft checkout of a user, replacing any previous one
func (s *Store) SaveDraft(userID int64, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode draft")
	}
	return s.put(bucketDrafts, userKey(userID), draftEnvelope{SavedAt: time.Now(), Payload: raw})
}

// LoadDraft decodes the user's draft into out, ok is false when there is none
func (s *Store) LoadDraft(userID int64, out interface{}) (bool, error) {
	var env draftEnvelope
	found, err := s.get(bucketDrafts, userKey(userID), &env)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return false, errors.Wrap(err, "decode draft")
	}
	return true, nil
}

func (s *Store) DeleteDraft(userID int64) error {
	return s.delete(bucketDrafts, userKey(userID))
}

// PurgeDrafts removes drafts saved before the cutoff and returns how many were removed
func (s *Store) PurgeDrafts(before time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDrafts))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var env draftEnvelope
			if err := json.Unmarshal(v, &env); err != nil || env.SavedAt.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

type dismissedEntry struct {
	Day        string  `json:"day"`
	ProductIDs []int64 `json:"product_ids"`
}

// DismissLowStock hides a product from the user's low stock list for the rest of the day
func (s *Store) DismissLowStock(userID, productID int64, now time.Time) error {
	var entry dismissedEntry
	if _, err := s.get(bucketDismissed, userKey(userID), &entry); err != nil {
		return err
	}
	today := now.Format(dayLayout)
	if entry.Day != today {
		entry = dismissedEntry{Day: today}
	}
	for _, id := range entry.ProductIDs {
		if id == productID {
			return nil
		}
	}
	entry.ProductIDs = append(entry.ProductIDs, productID)
	return s.put(bucketDismissed, userKey(userID), entry)
}

// DismissedToday returns the product ids the user dismissed on now's date
func (s *Store) DismissedToday(userID int64, now time.Time) (map[int64]bool, error) {
	var entry dismissedEntry
	result := make(map[int64]bool)
	found, err := s.get(bucketDismissed, userKey(userID), &entry)
	if err != nil || !found {
		return result, err
	}
	if entry.Day != now.Format(dayLayout) {
		return result, nil
	}
	for _, id := range entry.ProductIDs {
		result[id] = true
	}
	return result, nil
}

func (s *Store) ClearDismissed(userID int64) error {
	return s.delete(bucketDismissed, userKey(userID))
}
