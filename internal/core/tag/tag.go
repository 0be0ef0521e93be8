// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package tag

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/egregore/egregore/internal/platform/validate"
)

// # Enumerations

// Tag types form a closed enumeration of what a tag can describe.
const (
	TypeExploit           = "Exploit"
	TypeSoftware          = "Software"
	TypeThreatActor       = "Threat Actor"
	TypeMalwareFamily     = "Malware Family"
	TypeCampaign          = "Campaign"
	TypeMaliciousBehavior = "Malicious Behavior"
)

// Types lists every valid tag type.
var Types = []string{
	TypeExploit,
	TypeSoftware,
	TypeThreatActor,
	TypeMalwareFamily,
	TypeCampaign,
	TypeMaliciousBehavior,
}

// Visibility levels for a tag.
const (
	VisibilityPublic   = "Public"
	VisibilityPrivate  = "Private"
	VisibilityInternal = "Internal"
)

// Visibilities lists every valid visibility level.
var Visibilities = []string{VisibilityPublic, VisibilityPrivate, VisibilityInternal}

// Boolean operators combining a pattern's clauses.
const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"
)

// Operators lists every valid pattern operator.
var Operators = []string{OperatorAnd, OperatorOr}

// # Sub-Resources

// Reference is one external pointer attached to a tag (a report, blog
// post, sample page). Tags carry zero or more.
type Reference struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// ComputeID derives the reference's deterministic identifier from its
// link. The link is the only input because every other field is freely
// human-editable without changing what is being referenced.
func (r Reference) ComputeID() string {
	return sha1Hex([]byte(r.Link))
}

// Clause is one predicate of a pattern. Value may be a string, a
// number, or a homogeneous list of either.
type Clause struct {
	ID       string `json:"id"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// ComputeID derives the clause's deterministic identifier from its
// field, operator, and value.
func (c Clause) ComputeID() string {
	return sha1Hex([]byte(c.Field + c.Operator + valueKey(c.Value)))
}

// Pattern is one detection expression of a tag, combining clauses under
// a boolean operator with an optional validity window.
type Pattern struct {
	ID       string     `json:"id"`
	Start    *time.Time `json:"start,omitempty"`
	Stop     *time.Time `json:"stop,omitempty"`
	Operator string     `json:"operator"`
	Clauses  []Clause   `json:"clauses"`
}

// ComputeID derives the pattern's deterministic identifier from its
// operator and clauses. Clauses are sorted by (field, operator, value)
// first, so reordering them does not change the pattern's identity.
func (p Pattern) ComputeID() string {
	sorted := make([]Clause, len(p.Clauses))
	copy(sorted, p.Clauses)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		if a.Operator != b.Operator {
			return a.Operator < b.Operator
		}
		return valueKey(a.Value) < valueKey(b.Value)
	})

	payload := []byte(p.Operator)
	for _, clause := range sorted {
		// Hash a fixed serialization of the clause material, never the
		// stored JSON, so formatting cannot perturb identity.
		encoded, _ := json.Marshal(map[string]any{
			"field":    clause.Field,
			"operator": clause.Operator,
			"value":    clause.Value,
		})
		payload = append(payload, encoded...)
	}

	return sha1Hex(payload)
}

// valueKey renders a clause value as a deterministic comparison and
// hashing key.
func valueKey(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}

func sha1Hex(payload []byte) string {
	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:])
}

// # Tag Document

// Fields is the complete stored field set of a tag. It is the JSONB
// body persisted in the document store; the identifier and revision
// bookkeeping live outside it.
type Fields struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Groups      []string    `json:"groups"`
	Type        string      `json:"type"`
	Visibility  string      `json:"visibility"`
	Created     time.Time   `json:"created"`
	Author      string      `json:"author"`
	Updated     time.Time   `json:"updated"`
	Editor      string      `json:"editor"`
	Deleted     *time.Time  `json:"deleted,omitempty"`
	Related     []string    `json:"related"`
	State       *string     `json:"state"`
	References  []Reference `json:"references"`
	Patterns    []Pattern   `json:"patterns"`
}

// Tag is a stored tag plus its identity and revision bookkeeping. The
// Sequence token is what a client must echo back to mutate this exact
// revision.
type Tag struct {
	ID string `json:"id"`
	Fields
	Version  int64  `json:"version"`
	Sequence string `json:"sequence"`
}

// # Request Payloads

// CreateRequest carries the caller-supplied fields of a new tag.
type CreateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Groups      []string `json:"groups"`
	Type        string   `json:"type"`
	Visibility  string   `json:"visibility"`
}

// Validate checks the payload against the tag field constraints.
func (r CreateRequest) Validate() error {
	return validate.New().
		Required("name", r.Name).
		TagName("name", r.Name).
		MaxLen("name", r.Name, 255).
		Required("description", r.Description).
		Required("type", r.Type).
		OneOf("type", r.Type, Types...).
		Required("visibility", r.Visibility).
		OneOf("visibility", r.Visibility, Visibilities...).
		Err()
}

// UpdateRequest carries a partial update of a tag's base fields. Field
// presence in the request body, not non-emptiness, decides what gets
// merged: an explicit empty string clears a field, an absent key leaves
// it alone.
type UpdateRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Groups      *[]string `json:"groups,omitempty"`
	Type        *string   `json:"type,omitempty"`
	Visibility  *string   `json:"visibility,omitempty"`
}

// Validate checks every supplied field against the same constraints as
// creation.
func (r UpdateRequest) Validate() error {
	v := validate.New()
	if r.Name != nil {
		v.Required("name", *r.Name).TagName("name", *r.Name).MaxLen("name", *r.Name, 255)
	}
	if r.Type != nil {
		v.Required("type", *r.Type).OneOf("type", *r.Type, Types...)
	}
	if r.Visibility != nil {
		v.Required("visibility", *r.Visibility).OneOf("visibility", *r.Visibility, Visibilities...)
	}
	return v.Err()
}

// IsEmpty reports whether no field was supplied at all.
func (r UpdateRequest) IsEmpty() bool {
	return r.Name == nil && r.Description == nil && r.Groups == nil && r.Type == nil && r.Visibility == nil
}

// FieldNames lists the supplied field names, for audit messages.
func (r UpdateRequest) FieldNames() []string {
	var names []string
	if r.Name != nil {
		names = append(names, "name")
	}
	if r.Description != nil {
		names = append(names, "description")
	}
	if r.Groups != nil {
		names = append(names, "groups")
	}
	if r.Type != nil {
		names = append(names, "type")
	}
	if r.Visibility != nil {
		names = append(names, "visibility")
	}
	return names
}

// ReferenceRequest carries a new reference for a tag.
type ReferenceRequest struct {
	Name        string `json:"name"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// Validate checks the reference payload.
func (r ReferenceRequest) Validate() error {
	return validate.New().
		Required("name", r.Name).
		Required("link", r.Link).
		URL("link", r.Link).
		Required("source", r.Source).
		Err()
}

// Reference builds the stored sub-resource, stamping its identifier.
func (r ReferenceRequest) Reference() Reference {
	reference := Reference{
		Name:        r.Name,
		Link:        r.Link,
		Description: r.Description,
		Source:      r.Source,
	}
	reference.ID = reference.ComputeID()
	return reference
}

// ReferenceUpdate carries a partial update of one reference. Changing
// the link changes the reference's identity; callers receive the new
// identifier in the response body.
type ReferenceUpdate struct {
	Name        *string `json:"name,omitempty"`
	Link        *string `json:"link,omitempty"`
	Description *string `json:"description,omitempty"`
	Source      *string `json:"source,omitempty"`
}

// Validate checks every supplied field.
func (r ReferenceUpdate) Validate() error {
	v := validate.New()
	if r.Name != nil {
		v.Required("name", *r.Name)
	}
	if r.Link != nil {
		v.Required("link", *r.Link).URL("link", *r.Link)
	}
	if r.Source != nil {
		v.Required("source", *r.Source)
	}
	return v.Err()
}

// Apply merges the supplied fields into the reference and restamps its
// identifier.
func (r ReferenceUpdate) Apply(reference Reference) Reference {
	if r.Name != nil {
		reference.Name = *r.Name
	}
	if r.Link != nil {
		reference.Link = *r.Link
	}
	if r.Description != nil {
		reference.Description = *r.Description
	}
	if r.Source != nil {
		reference.Source = *r.Source
	}
	reference.ID = reference.ComputeID()
	return reference
}

// ClauseRequest carries one clause of a pattern payload.
type ClauseRequest struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// PatternRequest carries a new pattern for a tag.
type PatternRequest struct {
	Start    *time.Time      `json:"start,omitempty"`
	Stop     *time.Time      `json:"stop,omitempty"`
	Operator string          `json:"operator"`
	Clauses  []ClauseRequest `json:"clauses"`
}

// Validate checks the pattern payload.
func (r PatternRequest) Validate() error {
	v := validate.New().
		Required("operator", r.Operator).
		OneOf("operator", r.Operator, Operators...).
		Custom("clauses", len(r.Clauses) == 0, "must contain at least one clause")
	for i, clause := range r.Clauses {
		field := fmt.Sprintf("clauses[%d]", i)
		v.Required(field+".field", clause.Field)
		v.Required(field+".operator", clause.Operator)
		v.Custom(field+".value", clause.Value == nil, "is required")
	}
	return v.Err()
}

// Pattern builds the stored sub-resource, stamping clause and pattern
// identifiers.
func (r PatternRequest) Pattern() Pattern {
	pattern := Pattern{
		Start:    r.Start,
		Stop:     r.Stop,
		Operator: r.Operator,
		Clauses:  make([]Clause, 0, len(r.Clauses)),
	}
	for _, clause := range r.Clauses {
		stored := Clause{Field: clause.Field, Operator: clause.Operator, Value: clause.Value}
		stored.ID = stored.ComputeID()
		pattern.Clauses = append(pattern.Clauses, stored)
	}
	pattern.ID = pattern.ComputeID()
	return pattern
}

// PatternUpdate carries a partial update of one pattern. Supplying
// clauses replaces the clause list wholesale; clause-level editing is
// expressed by resubmitting the full list.
type PatternUpdate struct {
	Start    *time.Time       `json:"start,omitempty"`
	Stop     *time.Time       `json:"stop,omitempty"`
	Operator *string          `json:"operator,omitempty"`
	Clauses  *[]ClauseRequest `json:"clauses,omitempty"`
}

// Validate checks every supplied field.
func (r PatternUpdate) Validate() error {
	v := validate.New()
	if r.Operator != nil {
		v.Required("operator", *r.Operator).OneOf("operator", *r.Operator, Operators...)
	}
	if r.Clauses != nil {
		v.Custom("clauses", len(*r.Clauses) == 0, "must contain at least one clause")
		for i, clause := range *r.Clauses {
			field := fmt.Sprintf("clauses[%d]", i)
			v.Required(field+".field", clause.Field)
			v.Required(field+".operator", clause.Operator)
			v.Custom(field+".value", clause.Value == nil, "is required")
		}
	}
	return v.Err()
}

// Apply merges the supplied fields into the pattern and restamps every
// derived identifier.
func (r PatternUpdate) Apply(pattern Pattern) Pattern {
	if r.Start != nil {
		pattern.Start = r.Start
	}
	if r.Stop != nil {
		pattern.Stop = r.Stop
	}
	if r.Operator != nil {
		pattern.Operator = *r.Operator
	}
	if r.Clauses != nil {
		clauses := make([]Clause, 0, len(*r.Clauses))
		for _, clause := range *r.Clauses {
			stored := Clause{Field: clause.Field, Operator: clause.Operator, Value: clause.Value}
			stored.ID = stored.ComputeID()
			clauses = append(clauses, stored)
		}
		pattern.Clauses = clauses
	}
	pattern.ID = pattern.ComputeID()
	return pattern
}
