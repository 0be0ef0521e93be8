// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

/*
Package audit maintains the append-only record of every mutation
dispatched against the catalog.

# Architecture

Every service call that reaches the point of being written produces
exactly one audit entry: who did what, to which tag, at which resulting
version. Entries are never updated or deleted; the aggregation endpoint
summarizes them into a nested component / action / subcomponent /
subcomponent-action tree for dashboards.
*/
package audit

import (
	"time"
)

// Entry is one immutable audit record.
type Entry struct {
	Created            time.Time `json:"created"`
	Action             string    `json:"action"`
	Component          string    `json:"component"`
	Subcomponent       string    `json:"subcomponent,omitempty"`
	SubcomponentAction string    `json:"subcomponent_action,omitempty"`
	User               string    `json:"user"`
	Message            string    `json:"message"`
	TagID              string    `json:"tag_id,omitempty"`
	Version            int64     `json:"version,omitempty"`
}
