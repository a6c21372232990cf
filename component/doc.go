// Package component defines the lifecycle contract shared by the
// subsystem's long-lived parts and a Registry that starts them in
// registration order and stops them in reverse.
//
// # Interfaces
//
//   - Component: Start/Stop lifecycle and Health reporting
//   - Describable: startup summary descriptions
package component
