package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every BenchDash topic.
const DefaultTopicPrefix = "benchdash"

// Topics provides builders for BenchDash MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// The hierarchy is:
//
//	{prefix}/system/status              online/offline, retained, LWT
//	{prefix}/telemetry/{address}        one JSON sample per publish
//	{prefix}/command/{name}             inbound operator commands
//
// Example:
//
//	topics := mqtt.Topics{Prefix: "lab"}
//	topics.Telemetry("/dev/ttyACM0")
//	// Returns: "lab/telemetry/dev_ttyACM0"
type Topics struct {
	// Prefix replaces DefaultTopicPrefix when set.
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// SystemStatus returns the topic for BenchDash online/offline status.
//
// Example: benchdash/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// Telemetry returns the topic for samples from the board at address.
//
// Example: benchdash/telemetry/COM7
func (t Topics) Telemetry(address string) string {
	return fmt.Sprintf("%s/telemetry/%s", t.prefix(), Segment(address))
}

// Command returns the topic for a named operator command.
//
// Example: benchdash/command/shutdown
func (t Topics) Command(name string) string {
	return fmt.Sprintf("%s/command/%s", t.prefix(), Segment(name))
}

// Segment makes s safe to use as a single topic level.
//
// Level separators and wildcards become underscores; leading separators
// are dropped so "/dev/ttyACM0" maps to "dev_ttyACM0".
func Segment(s string) string {
	s = strings.TrimLeft(s, "/")
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, s)
}
