package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mrlokans/opdscatalog/internal/config"
	"github.com/mrlokans/opdscatalog/internal/entrypoint"
)

// openApp wires the catalog against the database at dbPath. An empty dbPath
// keeps DATABASE_PATH from the environment.
func openApp(dbPath string) (*entrypoint.App, error) {
	cfg := config.NewConfig()
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	absDBPath, err := filepath.Abs(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for database: %w", err)
	}
	cfg.Database.Path = absDBPath

	return entrypoint.Build(cfg)
}

func closeApp(app *entrypoint.App) {
	if err := app.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing database: %v\n", err)
	}
}

func output(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
