// Package mqttbridge connects the device registry to an MQTT broker (§4.5):
// it publishes Home-Assistant-style discovery documents and retained state
// for every device, group and the bridge entity itself, and routes inbound
// ".../set" commands into the command pipeline.
package mqttbridge
