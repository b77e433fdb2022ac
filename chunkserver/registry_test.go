package chunkserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryDisabledByDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := NewRegistry("")
	assert.False(t, r.Enabled())
	assert.Equal(t, NotAttempted, r.Write(ctx, "deadbeef", []byte("x")))

	_, ok := r.Read(ctx, "deadbeef")
	assert.False(t, ok)
}

func TestRegistryEnabledWithRef(t *testing.T) {
	t.Parallel()

	r := NewRegistry("localhost:5000/ccasfs/chunks", WithPlainHTTP())
	assert.True(t, r.Enabled())
}

func TestDescriptorForIsContentAddressed(t *testing.T) {
	t.Parallel()

	desc := descriptorFor("abc123", 4)
	assert.Equal(t, "sha256:abc123", desc.Digest.String())
	assert.Equal(t, int64(4), desc.Size)
	assert.Equal(t, chunkMediaType, desc.MediaType)
}
