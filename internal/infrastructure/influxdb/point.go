package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/benchdash/internal/telemetry"
)

// MeasurementTelemetry is the measurement name for board samples.
const MeasurementTelemetry = "benchlab"

// telemetryPoint converts a sample into a point, or nil when the sample has
// no numeric metric; InfluxDB rejects points without fields.
func telemetryPoint(src telemetry.Source, at time.Time, sample telemetry.Sample) *write.Point {
	fields := telemetryFields(sample)
	if len(fields) == 0 {
		return nil
	}
	return write.NewPoint(MeasurementTelemetry, telemetryTags(src), fields, at)
}

// telemetryTags indexes a point by board address and, once known, UID.
func telemetryTags(src telemetry.Source) map[string]string {
	tags := map[string]string{"address": src.Address}
	if src.Identity.UID != "" {
		tags["uid"] = src.Identity.UID
	}
	return tags
}

// telemetryFields keeps the numeric metrics of sample. nil readings and the
// timestamp series (which becomes the point time) are dropped.
func telemetryFields(sample telemetry.Sample) map[string]interface{} {
	fields := make(map[string]interface{}, len(sample))
	for k, v := range sample {
		if k == telemetry.TimestampKey {
			continue
		}
		switch n := v.(type) {
		case float64:
			fields[k] = n
		case float32:
			fields[k] = float64(n)
		case int:
			fields[k] = int64(n)
		case int64:
			fields[k] = n
		}
	}
	return fields
}
