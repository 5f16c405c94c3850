package meta

import "os"

// DevelopmentModeEnabled records whether development mode was requested. It
// is set automatically based on the RDELTA_DEVELOPMENT environment
// variable. No code in this module reads it.
var DevelopmentModeEnabled bool

func init() {
	DevelopmentModeEnabled = os.Getenv("RDELTA_DEVELOPMENT") == "1"
}
