// Package build provides build information that is linked into the application. Other
// packages within this project can use this information in logs etc..
package build

var (
	// Version is the build version of the binary (e.g. v0.1.0).
	Version = "dev"

	// Commit is the git commit SHA1 that the binary was built from.
	Commit = "none"

	// Date is the date the binary was built.
	Date = "unknown"

	// ProjectName is the project name, used as the metrics namespace.
	ProjectName = "sheetql"
)

// MinimumSupportedDatastoreSchemaRevision is the lowest goose revision the
// SQL backends can serve.
const MinimumSupportedDatastoreSchemaRevision = int64(1)
