// Package maintenance runs the two background tasks that keep the bridge
// pool honest over time (§4.7): a periodic mesh-info refresh that queries
// every ready bridge for its current status, and a pool-stats logger that
// reports connection health at a slower cadence. Both are also triggerable
// on demand, for the MQTT bridge entity's button handlers.
package maintenance
