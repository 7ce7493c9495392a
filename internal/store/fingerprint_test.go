package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	t.Run("should be deterministic", func(t *testing.T) {
		// Act
		a := Fingerprint([]byte("hello world"))
		b := Fingerprint([]byte("hello world"))

		// Assert
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("should differ for different input", func(t *testing.T) {
		// Act
		a := Fingerprint([]byte("hello world"))
		b := Fingerprint([]byte("hello worlds"))

		// Assert
		assert.NotEqual(t, a, b)
	})

	t.Run("should handle empty input", func(t *testing.T) {
		// Act
		sum := Fingerprint(nil)

		// Assert
		assert.Len(t, sum, 64)
	})
}
