package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileTrail appends events as JSON lines, each hashing its predecessor.
// Every Record is synced to disk before it returns.
type FileTrail struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	lastHash string
	count    int64
	now      func() time.Time
}

var _ Recorder = (*FileTrail)(nil)

// OpenFileTrail opens or creates the trail at path and resumes its chain.
func OpenFileTrail(path string) (*FileTrail, error) {
	last, count, err := scan(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to resume audit trail: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}
	return &FileTrail{
		path:     path,
		file:     f,
		lastHash: last,
		count:    count,
		now:      time.Now,
	}, nil
}

// Record fills in the id, timestamp, and hashes of event and appends it.
func (t *FileTrail) Record(event *Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return os.ErrClosed
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = t.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	event.PreviousHash = t.lastHash
	hash, err := eventHash(event)
	if err != nil {
		return err
	}
	event.EventHash = hash

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := t.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit trail: %w", err)
	}
	t.lastHash = hash
	t.count++
	return nil
}

// Count returns the number of events in the trail.
func (t *FileTrail) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *FileTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// Verify walks the trail at path and returns the number of intact events.
func Verify(path string) (int64, error) {
	_, count, err := scan(path)
	return count, err
}

// scan checks every line of the trail and returns the last hash.
func scan(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var previous string
	var n int64
	for scanner.Scan() {
		n++
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return "", n - 1, fmt.Errorf("%w: line %d: %w", ErrChainBroken, n, err)
		}
		if event.PreviousHash != previous {
			return "", n - 1, fmt.Errorf("%w: line %d does not follow its predecessor", ErrChainBroken, n)
		}
		want := event.EventHash
		got, err := eventHash(&event)
		if err != nil {
			return "", n - 1, err
		}
		if got != want {
			return "", n - 1, fmt.Errorf("%w: line %d was modified", ErrChainBroken, n)
		}
		previous = want
	}
	if err := scanner.Err(); err != nil {
		return "", n, fmt.Errorf("failed to read audit trail: %w", err)
	}
	return previous, n, nil
}

// eventHash hashes the event with EventHash cleared.
func eventHash(event *Event) (string, error) {
	c := *event
	c.EventHash = ""
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
