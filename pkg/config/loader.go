package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "assetrev.toml"

// ConfigDirName is the name of the project-level config directory.
// It also holds daemon runtime files.
const ConfigDirName = ".assetrev"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "assetrev"

// EnvFileName is the dotenv file read from the project root.
const EnvFileName = ".env"

// Load loads configuration starting from the current directory.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/assetrev/config.toml)
//  3. Project config (.assetrev/config.toml or assetrev.toml, searched upward)
//  4. .env in the project root
//  5. Environment variables (ASSETREV_*)
//
// CLI flags are applied separately after LoadFrom returns. Relative paths
// in the result are not yet anchored; see ProjectRoot and Config.WithBase.
func LoadFrom(dir string) (*Config, error) {
	cfg := NewConfig()

	// Layer 2: Global user config
	globalCfg, err := loadConfigFile(GetGlobalConfigPath())
	if err != nil {
		return nil, err
	}
	cfg.Merge(globalCfg)

	// Layer 3: Project config from specified directory
	projectCfg, err := loadProjectConfigFrom(dir)
	if err != nil {
		return nil, err
	}
	cfg.Merge(projectCfg)

	// Layer 4: .env never overrides variables already set
	loadEnvFile(ProjectRoot(dir))

	// Layer 5: Environment variables
	if err := applyEnvironmentVariables(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile loads an explicit config file on top of the defaults, skipping
// global and project discovery. Environment overrides still apply.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	fileCfg, err := loadConfigFile(path)
	if err != nil {
		return nil, err
	}
	if fileCfg == nil {
		return nil, fmt.Errorf("config file %s: %w", path, fs.ErrNotExist)
	}
	cfg.Merge(fileCfg)

	loadEnvFile(filepath.Dir(path))

	if err := applyEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectRoot returns the directory relative config paths are anchored at:
// the directory owning the nearest project config file, else the nearest
// workspace root, else dir itself.
func ProjectRoot(dir string) string {
	current := dir
	for {
		for _, p := range GetProjectConfigPaths(current) {
			if fileExists(p) {
				return current
			}
		}
		if isWorkspaceRoot(current) {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir
		}
		current = parent
	}
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) (*Config, error) {
	// Search up the directory tree for config files
	current := dir
	for {
		for _, p := range GetProjectConfigPaths(current) {
			cfg, err := loadConfigFile(p)
			if err != nil {
				return nil, err
			}
			if cfg != nil {
				return cfg, nil
			}
		}

		// Stop at filesystem root or workspace root
		if isWorkspaceRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil, nil
}

// isWorkspaceRoot checks if the directory is a workspace root.
func isWorkspaceRoot(dir string) bool {
	markers := []string{".git", "package.json", "composer.json", "go.mod"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file.
// A missing file yields (nil, nil); a malformed one is an error.
func loadConfigFile(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Source = path

	return &cfg, nil
}

func loadEnvFile(dir string) {
	p := filepath.Join(dir, EnvFileName)
	if !fileExists(p) {
		return
	}
	_ = godotenv.Load(p)
}

// applyEnvironmentVariables applies ASSETREV_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) error {
	applyStringEnv("ASSETREV_OUTPUT_ROOT", &cfg.Output.Root)
	applyBoolEnv("ASSETREV_KEEP_ORIGINAL", &cfg.Output.KeepOriginal)

	applyStringEnv("ASSETREV_MANIFEST_PATH", &cfg.Manifest.Path)
	applyStringEnv("ASSETREV_MANIFEST_FORMAT", &cfg.Manifest.Format)
	applyStringEnv("ASSETREV_ON_CORRUPT", &cfg.Manifest.OnCorrupt)

	applyStringEnv("ASSETREV_FINGERPRINT_ALGORITHM", &cfg.Fingerprint.Algorithm)
	applyStringEnv("ASSETREV_FINGERPRINT_STYLE", &cfg.Fingerprint.Style)
	if v := os.Getenv("ASSETREV_FINGERPRINT_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ASSETREV_FINGERPRINT_LENGTH=%q", ErrInvalid, v)
		}
		cfg.Fingerprint.Length = &n
	}

	applyBoolEnv("ASSETREV_PARALLEL", &cfg.Build.Parallel)
	applyBoolEnv("ASSETREV_PRUNE", &cfg.Build.Prune)
	applyBoolEnv("ASSETREV_STRICT", &cfg.Build.Strict)
	if v := os.Getenv("ASSETREV_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ASSETREV_WORKERS=%q", ErrInvalid, v)
		}
		cfg.Build.Workers = n
	}

	applyStringEnv("ASSETREV_PIPELINE", &cfg.Resolve.Pipeline)
	applyStringEnv("ASSETREV_URL_PREFIX", &cfg.Resolve.URLPrefix)
	applyStringEnv("ASSETREV_ASSETS_BASE_PATH", &cfg.Resolve.AssetsBasePath)
	applyStringEnv("ASSETREV_QUERY_PARAM", &cfg.Resolve.QueryParam)
	applyStringEnv("ASSETREV_QUERY_SOURCE", &cfg.Resolve.QuerySource)

	return nil
}

func applyStringEnv(envVar string, target *string) {
	if v := os.Getenv(envVar); v != "" {
		*target = v
	}
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
