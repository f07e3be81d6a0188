package mqtt

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/benchdash/internal/telemetry"
)

// Status values published on {prefix}/system/status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	reasonShutdown   = "graceful_shutdown"
	reasonConnection = "unexpected_disconnect"
)

// TelemetryMessage is the JSON body published for each sample.
type TelemetryMessage struct {
	Address   string           `json:"address"`
	UID       string           `json:"uid,omitempty"`
	Firmware  uint8            `json:"firmware"`
	Timestamp string           `json:"timestamp"`
	Metrics   telemetry.Sample `json:"metrics"`
}

// StatusMessage is the retained bridge status. The broker publishes the
// offline variant itself as the will when the connection drops.
type StatusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// encodeTelemetry drops the timestamp series; the message carries its own.
func encodeTelemetry(src telemetry.Source, at time.Time, sample telemetry.Sample) ([]byte, error) {
	metrics := make(telemetry.Sample, len(sample))
	for k, v := range sample {
		if k == telemetry.TimestampKey {
			continue
		}
		metrics[k] = v
	}
	return json.Marshal(TelemetryMessage{
		Address:   src.Address,
		UID:       src.Identity.UID,
		Firmware:  src.Identity.Firmware,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Metrics:   metrics,
	})
}

func encodeStatus(status, clientID, reason string, at time.Time) []byte {
	// Marshal of string fields cannot fail.
	b, _ := json.Marshal(StatusMessage{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: at.UTC().Format(time.RFC3339),
	})
	return b
}
