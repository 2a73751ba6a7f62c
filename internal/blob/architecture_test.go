package blob

import (
	"testing"

	"entitygraph/testutil"
)

// TestOnlyBlobPackageImportsInfra ensures that only the blob facade wraps the
// infra-backed implementations.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	testutil.AssertOnlyImportedFrom(t, "entitygraph/...", "entitygraph/internal/infra/blob", "entitygraph/internal/blob")
}
