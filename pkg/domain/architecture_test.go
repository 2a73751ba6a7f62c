package domain

import (
	"testing"

	"entitygraph/testutil"
)

// TestDomainDoesNotImportInternal enforces that the domain layer depends on
// neither internal implementation packages nor the schema and store layers
// built on top of it.
func TestDomainDoesNotImportInternal(t *testing.T) {
	forbidden := testutil.PrefixForbidden("entitygraph/pkg/store", "entitygraph/pkg/schema")
	testutil.AssertNoDirectImports(t, ".", func(p string) bool {
		return testutil.InternalImportForbidden(p) || forbidden(p)
	}, "domain is the bottom layer")
	testutil.AssertNoTransitiveDependency(t, "entitygraph/pkg/domain", forbidden, "domain is the bottom layer")
}
