// Package roster loads the read-only startup YAML file describing
// bridges, devices and groups (§6) and seeds a device.Registry from it.
// There is no hot reload; the roster is read exactly once, at startup.
package roster
