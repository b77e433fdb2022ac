//go:build integration

// Package integration holds tests that exercise CCASFS against real
// external services rather than the local filesystem alone.
package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ccasfs/ccasfs/chunkserver"
	"github.com/ccasfs/ccasfs/digest"
)

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

// getRegistry returns the shared registry:2 container address, starting
// it on first use. The container is shared across tests in this package.
func getRegistry(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	registryOnce.Do(func() {
		ctx := context.Background()
		registryAddr, registryErr = startRegistryContainer(ctx)
	})
	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}
	return registryAddr
}

func startRegistryContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start registry container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve registry host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5000/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve registry port: %w", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status == http.StatusOK
}

func TestRegistryChunkserverWriteRead(t *testing.T) {
	addr := getRegistry(t)
	ctx := context.Background()

	ref := addr + "/ccasfs/integration-chunks"
	srv := chunkserver.NewRegistry(ref, chunkserver.WithPlainHTTP())
	require.True(t, srv.Enabled())

	content := []byte("integration test chunk payload")
	dig := digest.Of(content)

	status := srv.Write(ctx, dig, content)
	require.Contains(t, []chunkserver.Status{chunkserver.Written, chunkserver.AlreadyPresent}, status)

	got, ok := srv.Read(ctx, dig)
	require.True(t, ok)
	require.Equal(t, content, got)
	require.Equal(t, dig, digest.Of(got))

	// Writing the same digest again is idempotent.
	require.Equal(t, chunkserver.AlreadyPresent, srv.Write(ctx, dig, content))
}

func TestRegistryChunkserverReadMissing(t *testing.T) {
	addr := getRegistry(t)
	ctx := context.Background()

	ref := addr + "/ccasfs/integration-chunks"
	srv := chunkserver.NewRegistry(ref, chunkserver.WithPlainHTTP())

	_, ok := srv.Read(ctx, digest.Of([]byte("never pushed")))
	require.False(t, ok)
}
