package config

// Default paths
const (
	// DefaultDatabasePath is the default path for the main catalog database
	DefaultDatabasePath = "./stacks.db"

	// DefaultUploadsDir is where uploaded export files are staged until the
	// owning job reaches a terminal status
	DefaultUploadsDir = "./uploads"
)
