package chunkserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	godigest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// chunkMediaType is the media type CCASFS uses for its chunk blobs. The
// registry never inspects it; it only needs to be stable and distinct.
const chunkMediaType = "application/vnd.ccasfs.chunk.v1"

// Registry is a chunkserver backed by an OCI registry repository, pushing
// and fetching chunks as content-addressed blobs instead of local files.
//
// A Registry with an empty repository reference is permanently disabled,
// the same convention [Local] uses for a null root.
type Registry struct {
	ref       string
	plainHTTP bool
	client    *auth.Client
	logger    *slog.Logger
}

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithPlainHTTP disables TLS when talking to the registry, for local test
// registries such as the "registry:2" image.
func WithPlainHTTP() RegistryOption {
	return func(r *Registry) { r.plainHTTP = true }
}

// WithRegistryLogger sets the logger used for push/fetch diagnostics.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithCredential sets the credential function used for authenticating to
// the registry. Anonymous access is used if this option is omitted.
func WithCredential(cred auth.CredentialFunc) RegistryOption {
	return func(r *Registry) {
		r.client.Credential = cred
	}
}

// NewRegistry creates a chunkserver backed by repositoryRef (e.g.
// "localhost:5000/ccasfs/chunks"). An empty ref produces a permanently
// disabled server.
func NewRegistry(repositoryRef string, opts ...RegistryOption) *Registry {
	r := &Registry{
		ref: repositoryRef,
		client: &auth.Client{
			Client:     retry.DefaultClient,
			Cache:      auth.NewCache(),
			Credential: auth.StaticCredential("", auth.EmptyCredential),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Enabled reports whether this server has a configured repository reference.
func (r *Registry) Enabled() bool {
	return r.ref != ""
}

func (r *Registry) repository() (*remote.Repository, error) {
	repo, err := remote.NewRepository(r.ref)
	if err != nil {
		return nil, err
	}
	repo.PlainHTTP = r.plainHTTP
	repo.Client = r.client
	return repo, nil
}

func descriptorFor(dig string, size int64) ocispec.Descriptor {
	return ocispec.Descriptor{
		MediaType: chunkMediaType,
		Digest:    godigest.NewDigestFromEncoded(godigest.SHA256, dig),
		Size:      size,
	}
}

// Write pushes data as an OCI blob addressed by digest.
func (r *Registry) Write(ctx context.Context, dig string, data []byte) Status {
	if !r.Enabled() {
		return NotAttempted
	}
	repo, err := r.repository()
	if err != nil {
		r.log().Error("resolve repository failed", "ref", r.ref, "error", err)
		return Failed
	}

	desc := descriptorFor(dig, int64(len(data)))

	if exists, err := repo.Blobs().Exists(ctx, desc); err == nil && exists {
		return AlreadyPresent
	}

	if err := repo.Blobs().Push(ctx, desc, bytes.NewReader(data)); err != nil {
		if errors.Is(err, errdef.ErrAlreadyExists) {
			return AlreadyPresent
		}
		r.log().Error("push chunk blob failed", "ref", r.ref, "digest", dig, "error", err)
		return Failed
	}
	return Written
}

// Read fetches the blob addressed by digest.
func (r *Registry) Read(ctx context.Context, dig string) ([]byte, bool) {
	if !r.Enabled() {
		return nil, false
	}
	repo, err := r.repository()
	if err != nil {
		r.log().Error("resolve repository failed", "ref", r.ref, "error", err)
		return nil, false
	}

	rc, err := repo.Blobs().Fetch(ctx, descriptorFor(dig, 0))
	if err != nil {
		return nil, false
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false
	}
	return data, true
}
