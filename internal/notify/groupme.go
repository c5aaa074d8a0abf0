package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/calls"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/config"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/pkg/json"
)

// Message represents an outbound dispatch alert.
type Message struct {
	Text string `json:"text"`
}

// GroupMe posts dispatch alerts to a GroupMe bot. A zero bot id disables it.
type GroupMe struct {
	botID  string
	url    string
	client *http.Client
}

func NewGroupMe(cfg config.NotifyConfig) *GroupMe {
	return &GroupMe{botID: cfg.GroupMeBotID, url: cfg.GroupMeURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (g *GroupMe) Enabled() bool { return g.botID != "" }

// Send posts msg if the bot is configured.
func (g *GroupMe) Send(ctx context.Context, msg Message) error {
	if !g.Enabled() {
		return nil
	}
	buf, err := json.Marshal(map[string]string{"text": msg.Text, "bot_id": g.botID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("groupme status %d", resp.StatusCode)
	}
	return nil
}

// CallAlert renders the dispatch text for a recorded call. Fields that are
// missing or not text-like are left out.
func CallAlert(callID int, rec calls.Record) Message {
	var b strings.Builder
	b.WriteString("EMERGENCY #")
	b.WriteString(strconv.Itoa(callID))
	if v, ok := calls.Text(rec.EmergencyType); ok && v != "" {
		b.WriteString(" " + strings.ToUpper(v))
	}
	for _, field := range []any{rec.Name, rec.Phone} {
		if v, ok := calls.Text(field); ok && v != "" {
			b.WriteString(" | " + v)
		}
	}
	if v, ok := calls.Text(rec.LocationAddress); ok && v != "" {
		b.WriteString(" | " + v)
	} else if lat, ok := calls.Number(rec.Latitude); ok {
		if lon, ok := calls.Number(rec.Longitude); ok {
			b.WriteString(" | " + strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64))
		}
	}
	if v, ok := calls.Text(rec.Description); ok && v != "" {
		b.WriteString(" | " + v)
	}
	if rec.Offline() {
		b.WriteString(" (offline)")
	}
	return Message{Text: b.String()}
}
