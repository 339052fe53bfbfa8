package microcache

import (
	"os"
	"path/filepath"

	"github.com/corehostfw/corehost/microcache/backend/inprocmap"
	"github.com/corehostfw/corehost/microcache/backend/sharedtable"
	"github.com/corehostfw/corehost/microcache/backend/sqlbackend"
	"github.com/spf13/afero"
)

// BackendConfig tunes the three candidate backends, mirroring the
// APCU_*-prefixed environment variables.
type BackendConfig struct {
	// SharedTableEnabled represents "the shared-memory extension is
	// loaded"; sharedtable has no real cross-process shared memory in pure
	// Go, so it is only selected when a caller explicitly opts in.
	SharedTableEnabled bool
	SharedTableRows    int
	SharedTableValue   int

	// SQLPath, if set, is the directory the embedded-SQL backend's database
	// file is created under. If empty, a RAM-backed path is probed first,
	// falling back to os.TempDir.
	SQLPath string
}

// ramCandidates lists paths conventionally backed by tmpfs/ramfs on Linux,
// probed in order before falling back to the system temp directory.
var ramCandidates = []string{"/dev/shm", "/run/shm"}

// SelectBackend implements the startup selection order: shared table if
// enabled, else embedded SQL on a writable RAM-backed path (or SQLPath, or
// system temp), else the in-process map. The chosen backend is fixed for
// the life of the process.
func SelectBackend(cfg BackendConfig) (Backend, error) {
	if cfg.SharedTableEnabled {
		rows := cfg.SharedTableRows
		if rows <= 0 {
			rows = 4096
		}
		value := cfg.SharedTableValue
		if value <= 0 {
			value = 4096
		}
		return sharedtable.New(rows, value), nil
	}

	if path, ok := sqlPath(cfg); ok {
		b, err := sqlbackend.Open(path)
		if err == nil {
			return b, nil
		}
		// fall through to the in-process map on any backend failure; the
		// microcache is opportunistic, not durable.
	}

	return inprocmap.New(0), nil
}

func sqlPath(cfg BackendConfig) (string, bool) {
	fs := afero.NewOsFs()

	if cfg.SQLPath != "" {
		if writable(fs, cfg.SQLPath) {
			return filepath.Join(cfg.SQLPath, "core_cache.sqlite"), true
		}
	}

	for _, dir := range ramCandidates {
		if writable(fs, dir) {
			return filepath.Join(dir, "core_cache.sqlite"), true
		}
	}

	tmp := os.TempDir()
	if writable(fs, tmp) {
		return filepath.Join(tmp, "core_cache.sqlite"), true
	}

	return "", false
}

func writable(fs afero.Fs, dir string) bool {
	info, err := fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	probe := filepath.Join(dir, ".corehost-write-probe")
	f, err := fs.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	fs.Remove(probe)
	return true
}
