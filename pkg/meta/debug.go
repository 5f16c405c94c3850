package meta

import "os"

// DebugEnabled controls whether or not verbose engine debugging is enabled.
// It is set automatically based on the RDELTA_DEBUG environment variable.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("RDELTA_DEBUG") == "1"
}
