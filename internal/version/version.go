// ABOUTME: Version and product identification
// ABOUTME: Overridden at build time with -ldflags "-X ...version.Version=..."
package version

var (
	// Version is the release version
	Version = "dev"

	// Product is the product name
	Product = "Evatrad Call Console"

	// Manufacturer is the publisher
	Manufacturer = "Evatrad"
)

// UserAgent identifies the client in HTTP requests
func UserAgent() string {
	return "evatrad-go/" + Version
}
