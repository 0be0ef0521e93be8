// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package tag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egregore/egregore/internal/core/tag"
	"github.com/egregore/egregore/internal/platform/apperr"
	"github.com/egregore/egregore/pkg/pointer"
)

/*
TestReference_Identity verifies that a reference's identity is a pure
function of its link: edits to the descriptive fields never change it,
edits to the link always do.
*/
func TestReference_Identity(t *testing.T) {
	base := tag.Reference{
		Name:        "Emotet deep dive",
		Link:        "https://research.example.com/emotet",
		Description: "Long-form analysis",
		Source:      "example-research",
	}

	renamed := base
	renamed.Name = "Completely different name"
	renamed.Description = "Completely different description"
	assert.Equal(t, base.ComputeID(), renamed.ComputeID())

	relinked := base
	relinked.Link = "https://research.example.com/emotet-v2"
	assert.NotEqual(t, base.ComputeID(), relinked.ComputeID())
}

/*
TestClause_Identity verifies clause ids react to each of field,
operator, and value.
*/
func TestClause_Identity(t *testing.T) {
	base := tag.Clause{Field: "process.name", Operator: "equals", Value: "emotet.exe"}

	same := tag.Clause{Field: "process.name", Operator: "equals", Value: "emotet.exe"}
	assert.Equal(t, base.ComputeID(), same.ComputeID())

	tests := []struct {
		name   string
		clause tag.Clause
	}{
		{"field changed", tag.Clause{Field: "file.name", Operator: "equals", Value: "emotet.exe"}},
		{"operator changed", tag.Clause{Field: "process.name", Operator: "contains", Value: "emotet.exe"}},
		{"value changed", tag.Clause{Field: "process.name", Operator: "equals", Value: "other.exe"}},
		{"list value changed", tag.Clause{Field: "process.name", Operator: "equals", Value: []string{"a", "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base.ComputeID(), tt.clause.ComputeID())
		})
	}
}

/*
TestPattern_Identity_ClauseOrderInvariant verifies that pattern identity
survives clause reordering but not clause edits.
*/
func TestPattern_Identity_ClauseOrderInvariant(t *testing.T) {
	first := tag.Clause{Field: "process.name", Operator: "equals", Value: "emotet.exe"}
	second := tag.Clause{Field: "registry.path", Operator: "contains", Value: `\Run\`}
	third := tag.Clause{Field: "network.port", Operator: "equals", Value: float64(8080)}

	forward := tag.Pattern{Operator: tag.OperatorAnd, Clauses: []tag.Clause{first, second, third}}
	reversed := tag.Pattern{Operator: tag.OperatorAnd, Clauses: []tag.Clause{third, second, first}}
	shuffled := tag.Pattern{Operator: tag.OperatorAnd, Clauses: []tag.Clause{second, third, first}}

	assert.Equal(t, forward.ComputeID(), reversed.ComputeID())
	assert.Equal(t, forward.ComputeID(), shuffled.ComputeID())

	edited := tag.Pattern{Operator: tag.OperatorAnd, Clauses: []tag.Clause{
		first, second, {Field: "network.port", Operator: "equals", Value: float64(9090)},
	}}
	assert.NotEqual(t, forward.ComputeID(), edited.ComputeID())

	otherOperator := tag.Pattern{Operator: tag.OperatorOr, Clauses: []tag.Clause{first, second, third}}
	assert.NotEqual(t, forward.ComputeID(), otherOperator.ComputeID())
}

/*
TestCreateRequest_Validate covers the closed enumerations and the name
constraints.
*/
func TestCreateRequest_Validate(t *testing.T) {
	valid := tag.CreateRequest{
		Name:        "Emotet",
		Description: "Banking trojan turned loader",
		Type:        tag.TypeMalwareFamily,
		Visibility:  tag.VisibilityPublic,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name        string
		mutate      func(r *tag.CreateRequest)
		failedField string
	}{
		{"missing name", func(r *tag.CreateRequest) { r.Name = "" }, "name"},
		{"name with forbidden characters", func(r *tag.CreateRequest) { r.Name = "Emotet<script>" }, "name"},
		{"missing description", func(r *tag.CreateRequest) { r.Description = "" }, "description"},
		{"unknown type", func(r *tag.CreateRequest) { r.Type = "Ransomware" }, "type"},
		{"unknown visibility", func(r *tag.CreateRequest) { r.Visibility = "Secret" }, "visibility"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := valid
			tt.mutate(&request)
			err := request.Validate()
			require.Error(t, err)

			appErr := apperr.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperr.CodeBadRequest, appErr.Code)

			fields := make([]string, 0, len(appErr.Fields))
			for _, fieldErr := range appErr.Fields {
				fields = append(fields, fieldErr.Field)
			}
			assert.Contains(t, fields, tt.failedField)
		})
	}
}

/*
TestUpdateRequest_Presence verifies that field presence, not
non-emptiness, drives both validation and the merge bookkeeping.
*/
func TestUpdateRequest_Presence(t *testing.T) {
	empty := tag.UpdateRequest{}
	assert.True(t, empty.IsEmpty())
	assert.NoError(t, empty.Validate())
	assert.Empty(t, empty.FieldNames())

	// An explicitly supplied empty description is a real update.
	clearDescription := tag.UpdateRequest{Description: pointer.To("")}
	assert.False(t, clearDescription.IsEmpty())
	assert.NoError(t, clearDescription.Validate())
	assert.Equal(t, []string{"description"}, clearDescription.FieldNames())

	// A supplied name is still held to the same rules as creation.
	badName := tag.UpdateRequest{Name: pointer.To("")}
	assert.Error(t, badName.Validate())

	badType := tag.UpdateRequest{Type: pointer.To("Ransomware")}
	assert.Error(t, badType.Validate())
}

/*
TestReferenceUpdate_Apply verifies the merge restamps identity exactly
when the link changes.
*/
func TestReferenceUpdate_Apply(t *testing.T) {
	original := tag.ReferenceRequest{
		Name:   "Report",
		Link:   "https://reports.example.com/1",
		Source: "example",
	}.Reference()

	renamed := tag.ReferenceUpdate{Name: pointer.To("Renamed report")}.Apply(original)
	assert.Equal(t, original.ID, renamed.ID)
	assert.Equal(t, "Renamed report", renamed.Name)

	relinked := tag.ReferenceUpdate{Link: pointer.To("https://reports.example.com/2")}.Apply(original)
	assert.NotEqual(t, original.ID, relinked.ID)
	assert.Equal(t, relinked.ComputeID(), relinked.ID)
}

/*
TestPatternRequest_BuildsIdentities verifies stamping of clause and
pattern ids on construction.
*/
func TestPatternRequest_BuildsIdentities(t *testing.T) {
	request := tag.PatternRequest{
		Operator: tag.OperatorAnd,
		Clauses: []tag.ClauseRequest{
			{Field: "process.name", Operator: "equals", Value: "emotet.exe"},
			{Field: "network.port", Operator: "equals", Value: float64(8080)},
		},
	}
	require.NoError(t, request.Validate())

	pattern := request.Pattern()
	assert.NotEmpty(t, pattern.ID)
	assert.Equal(t, pattern.ComputeID(), pattern.ID)
	require.Len(t, pattern.Clauses, 2)
	for _, clause := range pattern.Clauses {
		assert.Equal(t, clause.ComputeID(), clause.ID)
	}

	missingClauses := tag.PatternRequest{Operator: tag.OperatorAnd}
	assert.Error(t, missingClauses.Validate())
}

/*
TestPatternValidation_OperatorEnumeration verifies the operator is held
to the closed AND/OR set on both creation and partial update.
*/
func TestPatternValidation_OperatorEnumeration(t *testing.T) {
	clauses := []tag.ClauseRequest{
		{Field: "process.name", Operator: "equals", Value: "emotet.exe"},
	}

	for _, operator := range tag.Operators {
		assert.NoError(t, tag.PatternRequest{Operator: operator, Clauses: clauses}.Validate())
	}

	for _, operator := range []string{"NAND", "xor", "and", "or", "garbage"} {
		t.Run(operator, func(t *testing.T) {
			err := tag.PatternRequest{Operator: operator, Clauses: clauses}.Validate()
			require.Error(t, err)

			appErr := apperr.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperr.CodeBadRequest, appErr.Code)
			assert.Equal(t, "operator", appErr.Fields[0].Field)

			update := tag.PatternUpdate{Operator: pointer.To(operator)}
			assert.Error(t, update.Validate())
		})
	}

	// Partial updates that leave the operator alone stay valid.
	assert.NoError(t, tag.PatternUpdate{Operator: pointer.To(tag.OperatorOr)}.Validate())
}
