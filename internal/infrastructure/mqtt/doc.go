// Package mqtt provides the relay's MQTT broker connection.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament on geofence/relay/status
//
// # Architecture
//
// The relay has no direct binding to the mobile platform. The platform
// location service, the host process monitor and the deferred task executor
// are all peers on the broker:
//
//	platform service ↔ MQTT broker ↔ geofence relay ↔ scripting layer (HTTP/WS)
//
// Topic names are built with Topics so every package agrees on the layout.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllHostPresence(), 1,
//	    func(topic string, payload []byte) error {
//	        return table.Apply(mqtt.LastSegment(topic), payload)
//	    })
package mqtt
