// Package bridgepool is the process-wide registry of live bridge
// connections, keyed by endpoint, plus the deterministic bridge-selection
// algorithm the command pipeline uses (§4.3 step 2, §5's shared-resource
// model).
package bridgepool
