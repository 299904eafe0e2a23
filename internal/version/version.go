// ABOUTME: Version information for the stemdeck binaries
// ABOUTME: Reported by the CLI and the time stream hello message
package version

const (
	// Version is the release version
	Version = "0.3.0"

	// Product is the product name
	Product = "stemdeck"

	// Manufacturer is reported to time stream clients
	Manufacturer = "Stemdeck"
)
