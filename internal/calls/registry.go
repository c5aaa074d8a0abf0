package calls

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/config"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/metrics"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/pkg/json"
)

// TopicRecorded is published with a Recorded payload after each call.
const TopicRecorded = "call.recorded"

// Input carries the submitted call fields as decoded from JSON. Values are
// kept as sent, whatever their type; absent fields stay nil.
type Input struct {
	Phone           any
	Name            any
	Latitude        any
	Longitude       any
	EmergencyType   any
	Description     any
	LocationAddress any
	IsOffline       any
	RecordingID     any

	// offlineSent distinguishes an explicit "is_offline": null from an
	// absent key, which defaults to false.
	offlineSent bool
}

// InputFromBody picks the call fields out of a decoded request body.
func InputFromBody(body map[string]any) Input {
	in := Input{
		Phone:           body["phone"],
		Name:            body["name"],
		Latitude:        body["latitude"],
		Longitude:       body["longitude"],
		EmergencyType:   body["emergency_type"],
		Description:     body["description"],
		LocationAddress: body["location_address"],
		RecordingID:     body["recording_id"],
	}
	in.IsOffline, in.offlineSent = body["is_offline"]
	return in
}

// Record is an immutable emergency call entry.
type Record struct {
	Timestamp       string `json:"timestamp"`
	Phone           any    `json:"phone"`
	Name            any    `json:"name"`
	Latitude        any    `json:"latitude"`
	Longitude       any    `json:"longitude"`
	EmergencyType   any    `json:"emergency_type"`
	Description     any    `json:"description"`
	LocationAddress any    `json:"location_address"`
	IsOffline       any    `json:"is_offline"`
	RecordingID     any    `json:"recording_id"`
}

// Recorded is the event payload for TopicRecorded.
type Recorded struct {
	CallID int
	Record Record
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(topic string, payload any)
}

// Registry keeps calls in submission order and mirrors each one to an
// append-only JSON Lines log. The mutex covers both so log order matches ids.
type Registry struct {
	mu      sync.Mutex
	logPath string
	records []Record
	pub     Publisher
	now     func() time.Time
}

func NewRegistry(logPath string, pub Publisher) *Registry {
	return &Registry{logPath: logPath, pub: pub, now: config.Now}
}

// Preload seeds the registry so new ids continue after existing records.
func (r *Registry) Preload(records []Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
}

// Record stores the call and returns its id. The in-memory append is not
// undone when the log write fails; the error is still returned.
func (r *Registry) Record(in Input) (int, error) {
	rec := Record{
		Timestamp:       config.Timestamp(r.now()),
		Phone:           in.Phone,
		Name:            in.Name,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		EmergencyType:   in.EmergencyType,
		Description:     in.Description,
		LocationAddress: in.LocationAddress,
		IsOffline:       in.IsOffline,
		RecordingID:     in.RecordingID,
	}
	if in.IsOffline == nil && !in.offlineSent {
		rec.IsOffline = false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	id := len(r.records) - 1

	if err := r.appendLog(rec); err != nil {
		metrics.IncCallLogFailures()
		return id, fmt.Errorf("append call log: %w", err)
	}
	metrics.IncCallsRecorded()
	if r.pub != nil {
		r.pub.Publish(TopicRecorded, Recorded{CallID: id, Record: rec})
	}
	return id, nil
}

// List returns a copy of every record and the count.
func (r *Registry) List() ([]Record, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out, len(out)
}

func (r *Registry) appendLog(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(r.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadLog reads every record from a JSON Lines call log. A missing log yields
// no records; blank lines are skipped and a malformed line stops the read.
func LoadLog(path string) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return records, fmt.Errorf("call log line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
