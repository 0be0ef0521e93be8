// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package sequence_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egregore/egregore/internal/platform/apperr"
	"github.com/egregore/egregore/internal/platform/sequence"
)

/*
TestSequence_RoundTrip verifies decode(encode(seq, term)) == (seq, term)
for a spread of non-negative integer pairs.
*/
func TestSequence_RoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		seqNo       int64
		primaryTerm int64
	}{
		{"zero_zero", 0, 0},
		{"small", 3, 1},
		{"first_write", 1, 1},
		{"post_restart_epoch", 42, 7},
		{"large", 9223372036854775807, 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := sequence.New(tt.seqNo, tt.primaryTerm).Encode()

			decoded, err := sequence.Decode(token)
			require.NoError(t, err)
			assert.Equal(t, tt.seqNo, decoded.SeqNo)
			assert.Equal(t, tt.primaryTerm, decoded.PrimaryTerm)
		})
	}
}

/*
TestDecode_MalformedTokens checks that every malformation is a client-input
error ("shoebill"), never a server error.
*/
func TestDecode_MalformedTokens(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not_base64", "!!!not-base64!!!"},
		{"no_separator", base64.StdEncoding.EncodeToString([]byte("12"))},
		{"too_many_parts", base64.StdEncoding.EncodeToString([]byte("1,2,3"))},
		{"non_integer_seq", base64.StdEncoding.EncodeToString([]byte("abc,2"))},
		{"non_integer_term", base64.StdEncoding.EncodeToString([]byte("1,xyz"))},
		{"blank_parts", base64.StdEncoding.EncodeToString([]byte(","))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sequence.Decode(tt.token)
			require.Error(t, err)

			appError := apperr.As(err)
			require.NotNil(t, appError)
			assert.Equal(t, apperr.CodeBadRequest, appError.Code)
		})
	}
}

// The empty-string case above relies on base64 accepting "": an empty token
// decodes to zero bytes, which then fails the two-part split.

/*
TestSequence_Matches verifies structural equality on both components.
*/
func TestSequence_Matches(t *testing.T) {
	s := sequence.New(10, 2)

	assert.True(t, s.Matches(10, 2))
	assert.False(t, s.Matches(11, 2), "seq_no advanced")
	assert.False(t, s.Matches(10, 3), "primary term advanced")
	assert.False(t, s.Matches(11, 3))
}

/*
TestSequence_String checks the unencoded wire form.
*/
func TestSequence_String(t *testing.T) {
	assert.Equal(t, "5,2", sequence.New(5, 2).String())
}
