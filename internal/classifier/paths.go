package classifier

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/errors"
)

// Default artifact names searched when no path is configured.
const (
	DefaultTFLiteModelName = "skin_disease_model.tflite"
	DefaultONNXModelName   = "skin_disease_model.onnx"
	DefaultModelDirectory  = "model"
)

// DefaultModelName returns the file name searched for runtimeName.
func DefaultModelName(runtimeName string) string {
	if runtimeName == conf.RuntimeONNX {
		return DefaultONNXModelName
	}
	return DefaultTFLiteModelName
}

// ResolveModelPath returns the artifact to load. An explicit path has
// environment variables and a leading ~ expanded and must exist; an empty
// path searches the standard locations.
func ResolveModelPath(configured, runtimeName string) (string, error) {
	if configured != "" {
		path, err := expandPath(configured)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err != nil {
			return "", errors.New(err).
				Component("classifier").
				Category(errors.CategoryModelLoad).
				Priority(errors.PriorityCritical).
				ModelContext(path, runtimeName).
				Context("operation", "stat-model-file").
				Build()
		}
		return path, nil
	}

	name := DefaultModelName(runtimeName)
	candidates := candidatePaths(name)
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", errors.Newf("model %q not found in standard paths", name).
		Component("classifier").
		Category(errors.CategoryModelLoad).
		Priority(errors.PriorityCritical).
		Context("attempted_file", name).
		Context("attempted_paths", len(candidates)).
		Build()
}

func expandPath(path string) (string, error) {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New(err).
				Component("classifier").
				Category(errors.CategoryFileIO).
				Context("operation", "expand-home").
				Build()
		}
		path = filepath.Join(home, path[2:])
	}
	return path, nil
}

// candidatePaths lists search locations in priority order.
func candidatePaths(name string) []string {
	paths := []string{
		filepath.Join(DefaultModelDirectory, name),
		filepath.Join("data", DefaultModelDirectory, name),
		filepath.Join(string(filepath.Separator), "data", DefaultModelDirectory, name),
		filepath.Join(string(filepath.Separator), "models", name),
	}

	switch runtime.GOOS {
	case "windows":
		if programData := os.Getenv("PROGRAMDATA"); programData != "" {
			paths = append(paths, filepath.Join(programData, "SkinScan", DefaultModelDirectory, name))
		}
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			paths = append(paths, filepath.Join(localAppData, "SkinScan", DefaultModelDirectory, name))
		}
	default:
		paths = append(paths,
			filepath.Join(string(filepath.Separator), "usr", "share", "skinscan", DefaultModelDirectory, name),
			filepath.Join(string(filepath.Separator), "opt", "skinscan", DefaultModelDirectory, name),
		)
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			paths = append(paths, filepath.Join(xdg, "skinscan", DefaultModelDirectory, name))
		} else if home := os.Getenv("HOME"); home != "" {
			paths = append(paths, filepath.Join(home, ".local", "share", "skinscan", DefaultModelDirectory, name))
		}
	}

	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		paths = append(paths,
			filepath.Join(exeDir, DefaultModelDirectory, name),
			filepath.Join(exeDir, "..", "share", "skinscan", DefaultModelDirectory, name),
		)
	}

	return paths
}
