package recordings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/config"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/metrics"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/pkg/json"
)

const (
	TopicStarted = "recording.started"
	TopicStopped = "recording.stopped"
)

// ErrNotFound is returned for unknown recording ids.
var ErrNotFound = errors.New("recording not found")

// Session is a recording lifecycle. The JSON form is what gets persisted.
type Session struct {
	RecordingID string  `json:"-"`
	StartedAt   string  `json:"started_at"`
	Data        []any   `json:"data"`
	StoppedAt   *string `json:"stopped_at,omitempty"`
	Duration    *int    `json:"duration,omitempty"`
}

// Stopped is the event payload for TopicStopped.
type Stopped struct {
	Session Session
	Path    string
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(topic string, payload any)
}

// Manager tracks recording sessions in memory. Sessions are never evicted.
type Manager struct {
	mu       sync.Mutex
	dir      string
	sessions map[string]*Session
	pub      Publisher
	now      func() time.Time
}

// NewManager creates the recordings directory if needed.
func NewManager(dir string, pub Publisher) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	return &Manager{dir: dir, sessions: make(map[string]*Session), pub: pub, now: config.Now}, nil
}

// Start opens a session keyed by the current epoch time. Ids are not checked
// for collisions.
func (m *Manager) Start() string {
	now := m.now()
	id := recordingID(now)
	s := &Session{RecordingID: id, StartedAt: config.Timestamp(now), Data: []any{}}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	metrics.IncRecordingsStarted()
	if m.pub != nil {
		m.pub.Publish(TopicStarted, id)
	}
	return id
}

// Append adds an item to an open session's data.
func (m *Manager) Append(id string, item any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Data = append(s.Data, item)
	return nil
}

// Stop stamps the session and writes it to <dir>/<id>.json. Stopping again
// recomputes the stamp and duration and rewrites the file.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	stoppedAt := config.Timestamp(m.now())
	duration := len(s.Data)
	s.StoppedAt = &stoppedAt
	s.Duration = &duration

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode recording %s: %w", id, err)
	}
	path := m.Path(id)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write recording %s: %w", id, err)
	}

	metrics.IncRecordingsStopped()
	if m.pub != nil {
		m.pub.Publish(TopicStopped, Stopped{Session: s.snapshot(), Path: path})
	}
	return nil
}

// Get returns a copy of the session.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// Path is where a stopped session is persisted.
func (m *Manager) Path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

func (s *Session) snapshot() Session {
	out := *s
	out.Data = append([]any{}, s.Data...)
	return out
}

// recordingID renders "rec_<epoch seconds>" with a fractional part, always
// keeping at least one decimal digit.
func recordingID(t time.Time) string {
	secs := strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', -1, 64)
	if !strings.Contains(secs, ".") {
		secs += ".0"
	}
	return "rec_" + secs
}

// IDFromPath recovers the recording id from a persisted file name.
func IDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".json")
}
