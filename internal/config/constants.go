package config

// Shared constants used across director packages.
const (
	// SharedConfigKey is the reserved config name whose env section is
	// merged into every service environment.
	SharedConfigKey = "__shared__"

	// ManagedLabel marks containers created and owned by director.
	ManagedLabel = "inband"

	// FrontierService is the service that receives registration pushes.
	FrontierService = "frontier"

	// DirectorService is our own service name.
	DirectorService = "director"
)

// Dashboard grid defaults.
const (
	DefaultCols = 6
	DefaultRows = 6

	// DefaultCol and DefaultRow are the wanted position for services
	// that carry no position in config or image metadata.
	DefaultCol = 5
	DefaultRow = 5
)
