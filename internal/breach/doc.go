// Package breach provides the business boundary for geowatch's geofence
// breach engine. It defines the detection Service (validation, containment
// sweep, persistence, async dispatch), the risk Scorer, the Dispatcher
// (notification fan-out with failure isolation), the Store interface
// (persistence), and domain models.
package breach
