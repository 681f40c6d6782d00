// Package paths centralizes file and directory names used across the project.
// All cache and config file names are defined here as the single source of truth.
package paths

import (
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// AppDirName is the directory name used under the platform cache and config roots.
const AppDirName = "tokscale"

// Cache file names, one per dataset kind.
const (
	LiteLLMCacheFile    = "pricing-litellm.json"
	OpenRouterCacheFile = "pricing-openrouter.json"
)

// ConfigFile is the configuration file name under the config directory.
const ConfigFile = "config.toml"

// CacheDirEnv overrides the cache directory when set.
const CacheDirEnv = "TOKSCALE_CACHE_DIR"

// ///////////////////////////////////////////////
// Directory Resolution
// ///////////////////////////////////////////////

// CacheDir returns the directory used for cached pricing datasets.
// The TOKSCALE_CACHE_DIR environment variable takes precedence; otherwise
// the platform per-user cache root is used, falling back to the system
// temp directory when no cache root can be determined.
func CacheDir() string {
	if dir := os.Getenv(CacheDirEnv); dir != "" {
		return dir
	}
	root, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppDirName)
	}
	return filepath.Join(root, AppDirName)
}

// ConfigDir returns the directory holding config.toml, rooted at the
// platform per-user config root.
func ConfigDir() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, AppDirName), nil
}
