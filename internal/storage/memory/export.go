package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/persistarrows/extension/pkg/core"
)

// JournalExport is the root JSON structure
type JournalExport struct {
	Session     core.Session     `json:"session"`
	Projectiles []ProjectileJSON `json:"projectiles"`
	Stats       []core.Stats     `json:"stats"`
	Summary     map[string]int   `json:"summary"`
}

// ProjectileJSON is the lifecycle of one projectile id.
type ProjectileJSON struct {
	ID     core.ID               `json:"id"`
	Events []core.LifecycleEvent `json:"events"`
}

// exportJSON writes the session data to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	timestamp := b.session.StartedAt.UTC().Format("20060102_150405")
	filename := fmt.Sprintf("session_%s_%s.json", timestamp, b.session.ID.String()[:8])
	if b.cfg.CompressOutput {
		filename += ".gz"
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() JournalExport {
	export := JournalExport{
		Session:     *b.session,
		Projectiles: make([]ProjectileJSON, 0, len(b.order)),
		Stats:       make([]core.Stats, 0, len(b.stats)),
		Summary:     make(map[string]int),
	}

	for _, id := range b.order {
		record := b.projectiles[id]
		export.Projectiles = append(export.Projectiles, ProjectileJSON{
			ID:     record.ProjectileID,
			Events: record.Events,
		})
		for _, e := range record.Events {
			export.Summary[string(e.Kind)]++
		}
	}
	export.Stats = append(export.Stats, b.stats...)

	return export
}

func writeJSON(path string, data JournalExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data JournalExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
