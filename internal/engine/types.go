// ABOUTME: Structured records decoded from engine responses and the event feed
// ABOUTME: JSON tags follow the engine's own schema so replies relay unchanged

package engine

import (
	"fmt"
	"time"
)

// ImageSummary is one entry of GET /images/json.
type ImageSummary struct {
	ID          string            `json:"Id"`
	ParentID    string            `json:"ParentId"`
	RepoTags    []string          `json:"RepoTags"`
	RepoDigests []string          `json:"RepoDigests"`
	Created     int64             `json:"Created"`
	Size        int64             `json:"Size"`
	SharedSize  int64             `json:"SharedSize"`
	Labels      map[string]string `json:"Labels"`
	Containers  int64             `json:"Containers"`
}

// Port is a published or exposed container port.
type Port struct {
	IP          string `json:"IP,omitempty"`
	PrivatePort uint16 `json:"PrivatePort"`
	PublicPort  uint16 `json:"PublicPort,omitempty"`
	Type        string `json:"Type"`
}

// ContainerSummary is one entry of GET /containers/json.
type ContainerSummary struct {
	ID      string            `json:"Id"`
	Names   []string          `json:"Names"`
	Image   string            `json:"Image"`
	ImageID string            `json:"ImageID"`
	Command string            `json:"Command"`
	Created int64             `json:"Created"`
	State   string            `json:"State"`
	Status  string            `json:"Status"`
	Ports   []Port            `json:"Ports"`
	Labels  map[string]string `json:"Labels"`
}

// CreateResult is returned for ContainerCreate. Name echoes the generated
// container name since the engine reply only carries the ID.
type CreateResult struct {
	ID       string   `json:"Id"`
	Name     string   `json:"Name"`
	Warnings []string `json:"Warnings"`
}

// ActionResult is returned for ContainerStart and ContainerStop, which have no
// engine body. Changed is false when the engine reported 304 (already in that state).
type ActionResult struct {
	ID      string `json:"Id"`
	Action  string `json:"Action"`
	Changed bool   `json:"Changed"`
}

// Actor identifies the object an event is about.
type Actor struct {
	ID         string            `json:"ID"`
	Attributes map[string]string `json:"Attributes,omitempty"`
}

// Event is one record of the engine event feed.
type Event struct {
	Type     string `json:"Type"`
	Action   string `json:"Action"`
	Actor    Actor  `json:"Actor"`
	Scope    string `json:"scope,omitempty"`
	Time     int64  `json:"time"`
	TimeNano int64  `json:"timeNano"`
}

// Timestamp returns the event time, preferring nanosecond precision.
func (e Event) Timestamp() time.Time {
	if e.TimeNano > 0 {
		return time.Unix(0, e.TimeNano).UTC()
	}
	return time.Unix(e.Time, 0).UTC()
}

// Key identifies an event for duplicate suppression across reconnects.
func (e Event) Key() string {
	return fmt.Sprintf("%d|%s|%s|%s", e.Timestamp().UnixNano(), e.Type, e.Action, e.Actor.ID)
}
