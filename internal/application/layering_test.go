package application

import (
	"go/parser"
	"go/token"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUseCases_DependOnPortsOnly verifies the validation, batch and
// consolidation use cases reach infrastructure only through internal/ports.
// Config loading is the composition layer and may name concrete providers.
func TestUseCases_DependOnPortsOnly(t *testing.T) {
	fset := token.NewFileSet()
	for _, name := range []string{"orchestrator.go", "batch.go", "consolidation.go"} {
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		require.NoError(t, err, name)

		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			require.NoError(t, err)
			assert.False(t, strings.Contains(path, "/infrastructure/"), "%s imports %s", name, path)
		}
	}
}
