package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// RescanMessage asks viewers to rebuild their month index. Year and Month
// name the month that changed; both are zero for a full rescan.
type RescanMessage struct {
	Reason    string    `json:"reason"`
	Year      int       `json:"year,omitempty"`
	Month     int       `json:"month,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRescanMessage(reason string, year, month int) *RescanMessage {
	return &RescanMessage{
		Reason:    reason,
		Year:      year,
		Month:     month,
		Timestamp: time.Now().UTC(),
	}
}

func (m *RescanMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RescanMessageFromJSON decodes a delivery body. A message without a reason
// is rejected.
func RescanMessageFromJSON(data []byte) (*RescanMessage, error) {
	var msg RescanMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Reason == "" {
		return nil, fmt.Errorf("rescan message missing reason")
	}
	if msg.Month < 0 || msg.Month > 12 {
		return nil, fmt.Errorf("rescan message month %d out of range", msg.Month)
	}
	return &msg, nil
}
