// Package config provides the configuration loader for strata.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load discovers strata.yaml starting at cwd and walking up to the root.
// Without a file the defaults are returned, with storage rooted at cwd.
func (l *Loader) Load(cwd string) (domain.Config, error) {
	configPath, found := findConfiguration(cwd)
	if !found {
		cfg := domain.DefaultConfig()
		return cfg, cfg.Validate()
	}

	var file Stratafile
	if err := readAndUnmarshalYAML(configPath, &file); err != nil {
		return domain.Config{}, zerr.With(err, "path", configPath)
	}

	cfg, err := l.toDomain(filepath.Dir(configPath), &file)
	if err != nil {
		return domain.Config{}, zerr.With(err, "path", configPath)
	}
	if err := cfg.Validate(); err != nil {
		return domain.Config{}, zerr.With(err, "path", configPath)
	}
	return cfg, nil
}

func findConfiguration(cwd string) (string, bool) {
	currentDir := cwd
	for {
		candidate := filepath.Join(currentDir, domain.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", false
		}
		currentDir = parentDir
	}
}

func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is discovered by findConfiguration
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return zerr.Wrap(parseErr, domain.ErrConfigParseFailed.Error())
	}

	return nil
}

//nolint:cyclop // one branch per optional field
func (l *Loader) toDomain(root string, file *Stratafile) (domain.Config, error) {
	cfg := domain.DefaultConfig()

	if file.World.Min != nil {
		cfg.World.Bounds.Min = vec(*file.World.Min)
	}
	if file.World.Max != nil {
		cfg.World.Bounds.Max = vec(*file.World.Max)
	}
	if file.World.DefaultMaterial != "" {
		m, err := domain.MaterialByName(file.World.DefaultMaterial)
		if err != nil {
			return domain.Config{}, err
		}
		cfg.World.DefaultMaterial = m
	}

	set(&cfg.Octree.MaxDepth, file.Octree.MaxDepth)
	set(&cfg.Octree.CollapseThreshold, file.Octree.CollapseThreshold)

	set(&cfg.Cache.PathTTL, file.Cache.PathTTL)
	set(&cfg.Cache.PointCapacity, file.Cache.PointCapacity)
	set(&cfg.Cache.SpatialCapacity, file.Cache.SpatialCapacity)

	set(&cfg.Overlay.ConsolidationThreshold, file.Overlay.ConsolidationThreshold)
	set(&cfg.Overlay.ClusterCellSize, file.Overlay.ClusterCellSize)
	set(&cfg.Overlay.MaxAge, file.Overlay.MaxAge)
	if file.Overlay.Strategy != "" {
		cfg.Overlay.Strategy = strings.ToLower(file.Overlay.Strategy)
	}

	set(&cfg.Router.TransitionLevel, file.Router.TransitionLevel)
	set(&cfg.Router.MaxActiveTiles, file.Router.MaxActiveTiles)
	set(&cfg.Router.TileSize, file.Router.TileSize)
	set(&cfg.Router.FlushBeforeEvict, file.Router.FlushBeforeEvict)
	set(&cfg.Router.FlushParallelism, file.Router.FlushParallelism)

	if cfg.Router.TransitionLevel > cfg.Octree.MaxDepth && l.Logger != nil {
		l.Logger.Warn("router.transitionLevel exceeds octree.maxDepth; tree reads below it use the finest depth")
	}

	cfg.Storage = resolveStorage(root, file.Storage)
	return cfg, nil
}

func resolveStorage(root string, dto StorageDTO) domain.StorageConfig {
	driver := strings.ToLower(dto.Driver)
	if driver == "" {
		driver = domain.StorageNone
	}

	path := dto.Path
	if path == "" {
		switch driver {
		case domain.StorageFile:
			path = domain.DefaultChunkPath()
		case domain.StorageSQLite:
			path = domain.DefaultChunkDBPath()
		}
	}
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return domain.StorageConfig{Driver: driver, Path: path}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func vec(v [3]float64) domain.Vec3 {
	return domain.Vec3{X: v[0], Y: v[1], Z: v[2]}
}
