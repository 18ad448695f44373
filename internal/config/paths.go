package config

import (
	"os"
	"path/filepath"
)

const (
	DefaultInstance = "default"
	DefaultProfile  = "default"
)

// InstancePaths contains all paths for a voxflux instance.
type InstancePaths struct {
	Home     string // Instance home directory
	Config   string // YAML configuration file path
	Env      string // Optional dotenv file loaded before the YAML file
	ConfigDB string // SQLite configuration store path
	Logs     string // Logs directory
	LogFile  string // Server log file
}

// GetInstancePaths returns all paths for a given instance.
// Empty instance name defaults to "default".
func GetInstancePaths(instanceName string) InstancePaths {
	if instanceName == "" {
		instanceName = DefaultInstance
	}

	instanceDir := filepath.Join(GetHome(), "instances", instanceName)
	logs := filepath.Join(instanceDir, "logs")

	return InstancePaths{
		Home:     instanceDir,
		Config:   filepath.Join(instanceDir, "config.yaml"),
		Env:      filepath.Join(instanceDir, ".env"),
		ConfigDB: filepath.Join(instanceDir, "config.db"),
		Logs:     logs,
		LogFile:  filepath.Join(logs, "voxflux.log"),
	}
}

// GetHome returns the voxflux home directory (~/.voxflux).
func GetHome() string {
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".voxflux")
}

// ExpandPath expands ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == os.PathSeparator {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// EnsureInstanceDirs creates the directory structure for the given instance if it does not exist.
func EnsureInstanceDirs(instanceName string) (InstancePaths, error) {
	paths := GetInstancePaths(instanceName)

	for _, dir := range []string{paths.Home, paths.Logs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, err
		}
	}

	return paths, nil
}
