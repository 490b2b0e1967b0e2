package onnx

import (
	"runtime"

	"github.com/pkg/errors"
)

// DefaultSharedLibraryPath returns the onnxruntime library bundled under
// third_party for the current platform.
//
// Returns:
//   - string: The path to the shared library.
//   - error: An error if the platform has no bundled library.
func DefaultSharedLibraryPath() (string, error) {
	return sharedLibraryPath(runtime.GOOS, runtime.GOARCH)
}

func sharedLibraryPath(goos, goarch string) (string, error) {
	switch goos {
	case "windows":
		if goarch == "amd64" {
			return "third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "third_party/libonnxruntime.1.21.0.dylib", nil
	case "linux":
		if goarch == "arm64" {
			return "third_party/onnxruntime_arm64.so", nil
		}
		return "third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("no bundled onnxruntime library for %s/%s", goos, goarch)
}
