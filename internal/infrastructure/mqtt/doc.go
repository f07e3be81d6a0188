// Package mqtt provides MQTT client connectivity for BenchDash.
//
// This package manages:
//   - Connection to a Mosquitto (or compatible) broker with auto-reconnect
//   - Telemetry export: one JSON message per throttled sample per board
//   - Operator commands received on {prefix}/command/{name}
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The sampling poller is the single reader of each board's serial port.
// Exporters hang off the poller as telemetry sinks rather than opening the
// port again:
//
//	Board → Poller → History
//	              ↘ Client (telemetry.Sink) → Broker → dashboards
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is off-host
//   - The command topic can stop the process; restrict it in the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sink := telemetry.NewThrottle(client, cfg.MQTT.PublishInterval)
//
//	err = client.HandleCommand("shutdown", func() {
//	    manager.GracefulShutdown()
//	})
package mqtt
