package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadKey(t *testing.T) {
	assert.Equal(t, "datasets/42/0b7c/iris.csv", UploadKey(42, "0b7c", "iris.csv"))
	assert.Equal(t, "datasets/42/0b7c/passwd", UploadKey(42, "0b7c", "../../passwd"))
	assert.NotEqual(t, UploadKey(42, "a", "iris.csv"), UploadKey(42, "b", "iris.csv"))
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"iris.csv":             "iris.csv",
		"../../etc/passwd":     "passwd",
		`C:\Users\me\data.zip`: "data.zip",
		"":                     "data",
		"..":                   "data",
		"dir/":                 "dir",
	}

	for in, want := range tests {
		assert.Equal(t, want, SanitizeFileName(in), "input %q", in)
	}
}
