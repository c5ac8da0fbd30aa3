// Package threadgate provides the version information of the threadgate
// tools.
package threadgate

// Version is the current version of threadgate.
const Version = "0.3.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
