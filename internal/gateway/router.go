// ABOUTME: Request router mapping the type parameter to a fixed engine operation
// ABOUTME: Validates required parameters and generates unique container names

package gateway

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/2389/dock-gateway/internal/engine"
)

// ErrInvalidRequest means the type is unknown or a required parameter is missing.
// It is the only error the HTTP boundary maps to 400.
var ErrInvalidRequest = errors.New("invalid request")

// Query parameter names
const (
	ParamType        = "type"
	ParamImageID     = "imageId"
	ParamImage       = "image"
	ParamName        = "name"
	ParamContainerID = "containerId"
)

// DefaultType is used when the root path is requested without a type.
const DefaultType = "info"

type routeFunc func(r *Router, q url.Values) (engine.Operation, error)

var routes = map[string]routeFunc{
	"images": func(*Router, url.Values) (engine.Operation, error) {
		return engine.ImageList(), nil
	},
	"images_history": func(_ *Router, q url.Values) (engine.Operation, error) {
		id, err := required(q, ParamImageID)
		if err != nil {
			return engine.Operation{}, err
		}
		return engine.ImageInspect(id), nil
	},
	"containers": func(*Router, url.Values) (engine.Operation, error) {
		return engine.ContainerList(), nil
	},
	"container_create": func(r *Router, q url.Values) (engine.Operation, error) {
		image, err := required(q, ParamImage)
		if err != nil {
			return engine.Operation{}, err
		}
		ref, err := name.ParseReference(image)
		if err != nil {
			return engine.Operation{}, fmt.Errorf("%w: image %q: %v", ErrInvalidRequest, image, err)
		}
		return engine.ContainerCreate(image, r.containerName(q.Get(ParamName), ref)), nil
	},
	"container_start": func(_ *Router, q url.Values) (engine.Operation, error) {
		id, err := containerID(q)
		if err != nil {
			return engine.Operation{}, err
		}
		return engine.ContainerStart(id), nil
	},
	"container_stop": func(_ *Router, q url.Values) (engine.Operation, error) {
		id, err := containerID(q)
		if err != nil {
			return engine.Operation{}, err
		}
		return engine.ContainerStop(id), nil
	},
	"info": func(*Router, url.Values) (engine.Operation, error) {
		return engine.Info(), nil
	},
	"version": func(*Router, url.Values) (engine.Operation, error) {
		return engine.Version(), nil
	},
}

// Router resolves request types to engine operations. It performs no I/O.
type Router struct {
	seq atomic.Uint64
	now func() time.Time
}

// NewRouter creates a Router.
func NewRouter() *Router {
	return &Router{now: time.Now}
}

// Types returns the recognized type values, sorted.
func Types() []string {
	return slices.Sorted(maps.Keys(routes))
}

// Resolve maps typ and its query parameters to an Operation.
// An empty typ resolves to DefaultType.
func (r *Router) Resolve(typ string, q url.Values) (engine.Operation, error) {
	if typ == "" {
		typ = DefaultType
	}
	route, ok := routes[typ]
	if !ok {
		return engine.Operation{}, fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, typ)
	}
	return route(r, q)
}

func required(q url.Values, param string) (string, error) {
	v := strings.TrimSpace(q.Get(param))
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidRequest, param)
	}
	return v, nil
}

// Engine container names and IDs share this alphabet.
var containerIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

func containerID(q url.Values) (string, error) {
	id, err := required(q, ParamContainerID)
	if err != nil {
		return "", err
	}
	if !containerIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: malformed %s %q", ErrInvalidRequest, ParamContainerID, id)
	}
	return id, nil
}

var nameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// containerName builds <prefix>_<unixmillis>_<seq>. The prefix is the
// caller's name, or the last path segment of the image repository.
// The sequence keeps names unique within one millisecond.
func (r *Router) containerName(requested string, ref name.Reference) string {
	prefix := nameUnsafe.ReplaceAllString(strings.TrimSpace(requested), "_")
	prefix = strings.Trim(prefix, "_.-")
	if prefix == "" {
		prefix = path.Base(ref.Context().RepositoryStr())
	}
	return fmt.Sprintf("%s_%d_%d", prefix, r.now().UnixMilli(), r.seq.Add(1))
}
