package definition

import (
	"bufio"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/pkg/errors"
)

// Separator line between records in the store file.
const recordSeparator = "%"

// FileStorage is the fortune store: an in-memory list of records
// persisted by appending "<record>\n%\n" to a text file. A missing
// file is an empty store, not an error.
type FileStorage struct {
	mutex   sync.Mutex
	path    string
	records []string
	rand    *rand.Rand
}

func NewFileStorage(path string) (*FileStorage, error) {
	s := &FileStorage{
		path: path,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Read the existing file, splitting on separator lines. Records keep
// their interior newlines.
func (s *FileStorage) load() error {
	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "opening store %s", s.path)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == recordSeparator {
			s.records = append(s.records, strings.Join(lines, "\n"))
			lines = nil
			continue
		}
		lines = append(lines, line)
	}
	return errors.Wrapf(scanner.Err(), "reading store %s", s.path)
}

// FileStorage implements types.Storage.
func (s *FileStorage) Append(record string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening store %s for append", s.path)
	}
	defer file.Close()

	if _, err := file.WriteString(record + "\n" + recordSeparator + "\n"); err != nil {
		return errors.Wrapf(err, "appending to store %s", s.path)
	}
	// Flush before the append becomes visible in memory.
	if err := file.Sync(); err != nil {
		return errors.Wrapf(err, "syncing store %s", s.path)
	}

	s.records = append(s.records, record)
	return nil
}

// FileStorage implements types.Storage.
func (s *FileStorage) Random() (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.records) == 0 {
		return "", false
	}
	return s.records[s.rand.Intn(len(s.records))], true
}

// FileStorage implements types.Storage.
func (s *FileStorage) All() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	snapshot := make([]string, len(s.records))
	copy(snapshot, s.records)
	return snapshot
}

// FileStorage implements types.Storage.
func (s *FileStorage) Size() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.records)
}

var _ types.Storage = (*FileStorage)(nil)
