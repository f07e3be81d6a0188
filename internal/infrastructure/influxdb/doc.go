// Package influxdb exports BenchDash telemetry to InfluxDB v2.
//
// Every BENCHLAB sample that passes the export throttle becomes one point
// in the "benchlab" measurement:
//
//	benchlab,address=COM7,uid=3F00... CPU_Power=41.2,Fan1_RPM=1180 1700000000000000000
//
// Tags carry the board address and UID; fields carry every numeric metric.
// Metrics without a reading (nil) are omitted from the point.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sink := telemetry.NewThrottle(client, cfg.InfluxDB.PublishInterval)
//
// Writes are batched and non-blocking; batch failures are logged, never
// returned to the poller.
package influxdb
