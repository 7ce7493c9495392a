package build

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDockerfileUsesExpectedBaseImages(t *testing.T) {
	// Read Dockerfile content
	dockerfile, err := os.ReadFile("Dockerfile")
	assert.NoError(t, err)
	content := string(dockerfile)

	// Verify builder stage uses the Go toolchain image
	assert.Contains(t, content, "FROM golang:1.24-bookworm AS builder")

	// Verify runtime stage uses a slim Debian image
	assert.Contains(t, content, "FROM debian:bookworm-slim AS runtime")

	// Ensure no GPU base images are pulled in; this service only polls HTTP
	assert.NotContains(t, content, "nvidia")
	assert.NotContains(t, content, "cuda")
}

func TestDockerfileBuildsWithCgo(t *testing.T) {
	// Read Dockerfile content
	dockerfile, err := os.ReadFile("Dockerfile")
	assert.NoError(t, err)
	content := string(dockerfile)

	// The sqlite3 driver compiles C sources, so both the test and build
	// steps must run with cgo enabled
	assert.Contains(t, content, "CGO_ENABLED=1 go test")
	assert.Contains(t, content, "CGO_ENABLED=1 go build")

	// The bookworm Go image ships a C toolchain; a static-only build
	// would break the driver
	assert.NotContains(t, content, "CGO_ENABLED=0")
}

func TestDockerfileMaintainsSecurityConfiguration(t *testing.T) {
	// Read Dockerfile content
	dockerfile, err := os.ReadFile("Dockerfile")
	assert.NoError(t, err)
	content := string(dockerfile)

	// Verify non-root user configuration is maintained
	assert.Contains(t, content, "USER appuser")
	assert.Contains(t, content, "useradd -r -u 1000 -m -s /bin/bash appuser")

	// Verify working directory and ownership
	assert.Contains(t, content, "WORKDIR /app")
	assert.Contains(t, content, "chown -R appuser:appuser /app")
}

func TestDockerfileCarriesNoMediaToolchain(t *testing.T) {
	// Read Dockerfile content
	dockerfile, err := os.ReadFile("Dockerfile")
	assert.NoError(t, err)
	content := string(dockerfile)

	// Audio decoding and model inference happen in the backend service,
	// so none of that toolchain belongs in this image
	assert.NotContains(t, content, "ffmpeg")
	assert.NotContains(t, content, "whisper")
	assert.NotContains(t, content, "libopenblas")
	assert.NotContains(t, content, "cmake")
}
