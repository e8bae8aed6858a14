package indexer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dshills/coderag/pkg/types"
)

// ErrStatsNotFound is returned when no build has recorded stats yet
var ErrStatsNotFound = errors.New("no stats found")

// SaveStats records the last build summary under dir
func SaveStats(dir string, stats types.RunStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, StatsFile), data)
}

// LoadStats reads the last build summary from dir
func LoadStats(dir string) (types.RunStats, error) {
	var stats types.RunStats

	data, err := os.ReadFile(filepath.Join(dir, StatsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return stats, ErrStatsNotFound
	}
	if err != nil {
		return stats, fmt.Errorf("failed to read stats: %w", err)
	}

	if err := yaml.Unmarshal(data, &stats); err != nil {
		return stats, fmt.Errorf("failed to parse stats: %w", err)
	}
	return stats, nil
}
