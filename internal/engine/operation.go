// ABOUTME: Operation tagged variant and its per-kind dispatch table
// ABOUTME: Each kind maps to exactly one request template and one body decoder

package engine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Kind enumerates the fixed set of engine operations.
type Kind int

const (
	KindImageList Kind = iota + 1
	KindImageInspect
	KindContainerList
	KindContainerCreate
	KindContainerStart
	KindContainerStop
	KindInfo
	KindVersion
)

var kindNames = map[Kind]string{
	KindImageList:       "image_list",
	KindImageInspect:    "image_inspect",
	KindContainerList:   "container_list",
	KindContainerCreate: "container_create",
	KindContainerStart:  "container_start",
	KindContainerStop:   "container_stop",
	KindInfo:            "info",
	KindVersion:         "version",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Operation is one resolved engine call. Only the fields relevant to Kind are set.
type Operation struct {
	Kind        Kind
	ImageID     string
	Image       string
	Name        string
	ContainerID string
}

func ImageList() Operation             { return Operation{Kind: KindImageList} }
func ImageInspect(id string) Operation { return Operation{Kind: KindImageInspect, ImageID: id} }
func ContainerList() Operation         { return Operation{Kind: KindContainerList} }
func Info() Operation                  { return Operation{Kind: KindInfo} }
func Version() Operation               { return Operation{Kind: KindVersion} }

func ContainerCreate(image, name string) Operation {
	return Operation{Kind: KindContainerCreate, Image: image, Name: name}
}

func ContainerStart(id string) Operation {
	return Operation{Kind: KindContainerStart, ContainerID: id}
}

func ContainerStop(id string) Operation {
	return Operation{Kind: KindContainerStop, ContainerID: id}
}

// Request is the (method, path, query, body) triple sent to the engine.
// Body is JSON-encoded when non-nil.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a decoded engine reply.
type Response struct {
	StatusCode int
	Body       any
}

// handler binds a Kind to its request template and body decoder.
type handler struct {
	build  func(op Operation) Request
	decode func(op Operation, status int, body []byte) (any, error)
	// notModifiedOK treats 304 as success (start/stop on a container already in that state)
	notModifiedOK bool
}

var dispatch = map[Kind]handler{
	KindImageList: {
		build:  func(Operation) Request { return Request{Method: http.MethodGet, Path: "/images/json"} },
		decode: decodeInto[[]ImageSummary],
	},
	KindImageInspect: {
		build: func(op Operation) Request {
			return Request{Method: http.MethodGet, Path: "/images/" + url.PathEscape(op.ImageID) + "/json"}
		},
		decode: decodeInto[map[string]any],
	},
	KindContainerList: {
		build: func(Operation) Request {
			return Request{Method: http.MethodGet, Path: "/containers/json", Query: url.Values{"all": {"1"}}}
		},
		decode: decodeInto[[]ContainerSummary],
	},
	KindContainerCreate: {
		build: func(op Operation) Request {
			return Request{
				Method: http.MethodPost,
				Path:   "/containers/create",
				Query:  url.Values{"name": {op.Name}},
				Body:   map[string]any{"Image": op.Image},
			}
		},
		decode: decodeCreate,
	},
	KindContainerStart: {
		build: func(op Operation) Request {
			return Request{Method: http.MethodPost, Path: "/containers/" + url.PathEscape(op.ContainerID) + "/start"}
		},
		decode:        decodeAction("start"),
		notModifiedOK: true,
	},
	KindContainerStop: {
		build: func(op Operation) Request {
			return Request{Method: http.MethodPost, Path: "/containers/" + url.PathEscape(op.ContainerID) + "/stop"}
		},
		decode:        decodeAction("stop"),
		notModifiedOK: true,
	},
	KindInfo: {
		build:  func(Operation) Request { return Request{Method: http.MethodGet, Path: "/info"} },
		decode: decodeInto[map[string]any],
	},
	KindVersion: {
		build:  func(Operation) Request { return Request{Method: http.MethodGet, Path: "/version"} },
		decode: decodeInto[map[string]any],
	},
}

// Request builds the engine request for op without performing any I/O.
func (op Operation) Request() (Request, error) {
	h, ok := dispatch[op.Kind]
	if !ok {
		return Request{}, fmt.Errorf("unknown operation %s", op.Kind)
	}
	return h.build(op), nil
}

func decodeInto[T any](_ Operation, _ int, body []byte) (any, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}

func decodeCreate(op Operation, _ int, body []byte) (any, error) {
	var created struct {
		ID       string   `json:"Id"`
		Warnings []string `json:"Warnings"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("%w: create response has no Id", ErrDecode)
	}
	if created.Warnings == nil {
		created.Warnings = []string{}
	}
	return CreateResult{ID: created.ID, Name: op.Name, Warnings: created.Warnings}, nil
}

func decodeAction(action string) func(Operation, int, []byte) (any, error) {
	return func(op Operation, status int, _ []byte) (any, error) {
		return ActionResult{
			ID:      op.ContainerID,
			Action:  action,
			Changed: status != http.StatusNotModified,
		}, nil
	}
}
