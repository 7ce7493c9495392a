package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// buildTestImage builds the production Docker image for container tests
func buildTestImage(t *testing.T) string {
	repoRoot, err := findRepoRoot()
	require.NoError(t, err, "Should find repository root")

	imageName := "meetscribe-test:" + generateTimestamp()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	buildCmd := exec.CommandContext(ctx, "docker", "build",
		"-f", "build/Dockerfile",
		"-t", imageName,
		".")
	buildCmd.Dir = repoRoot

	output, err := buildCmd.CombinedOutput()
	require.NoError(t, err, "Docker build should succeed. Output: %s", string(output))

	return imageName
}

// cleanupImage removes a Docker image
func cleanupImage(imageName string) {
	cleanupCmd := exec.Command("docker", "rmi", imageName)
	cleanupCmd.Run() // Ignore errors during cleanup
}

// findRepoRoot finds the repository root directory
func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Look for go.mod file to identify repo root
	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("could not find repository root (go.mod not found)")
}

// generateTimestamp generates a timestamp for unique naming
func generateTimestamp() string {
	return fmt.Sprintf("%d", time.Now().Unix())
}
