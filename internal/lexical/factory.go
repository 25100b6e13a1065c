package lexical

import (
	"fmt"
	"path/filepath"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/rerrors"
)

// New opens the configured lexical backend rooted at dataDir. Grounded on
// the NewBM25IndexWithBackend/DetectBM25Backend/GetBM25IndexPath
// trio, collapsed into one call since this module doesn't need to detect
// an existing backend from an unlabeled directory — config always says
// which one is active.
func New(dataDir string, backend string) (Index, error) {
	switch backend {
	case BackendSQLite, "":
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "lexical.db")
		}
		return NewSQLiteIndex(path)

	case BackendBleve:
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "lexical.bleve")
		}
		return NewBleveIndex(path)

	default:
		return nil, rerrors.ConfigError(fmt.Sprintf("unknown lexical backend %q (valid: %s, %s)", backend, BackendSQLite, BackendBleve), nil)
	}
}

// IndexPath returns the on-disk path for a given backend, used by the
// `doctor`/`reset` CLI subcommands to report or clear index state without
// opening it.
func IndexPath(dataDir string, backend string) string {
	switch backend {
	case BackendBleve:
		return filepath.Join(dataDir, "lexical.bleve")
	default:
		return filepath.Join(dataDir, "lexical.db")
	}
}
