// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

/*
Package sequence implements the optimistic-concurrency token used to guard
every mutation of a stored document.

A [Sequence] pairs the backend-assigned sequence number with its primary
term (epoch). Equality of both components, and only both, proves that no
write has happened since the caller's last read.

Wire format: "<seq_no>,<primary_term>" base64-encoded into a single opaque
string, produced by every read of a mutable document and required by every
mutating call on one. Tokens are strictly request-scoped and never persisted.
*/
package sequence

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/egregore/egregore/internal/platform/apperr"
)

// Sequence identifies one exact revision of a stored document.
type Sequence struct {
	SeqNo       int64
	PrimaryTerm int64
}

// New constructs a Sequence from its two components.
func New(seqNo, primaryTerm int64) Sequence {
	return Sequence{SeqNo: seqNo, PrimaryTerm: primaryTerm}
}

// String returns the unencoded "seq_no,primary_term" form.
func (s Sequence) String() string {
	return fmt.Sprintf("%d,%d", s.SeqNo, s.PrimaryTerm)
}

// Encode serializes the sequence into its opaque transport token.
// It is total: encoding never fails for any integer pair.
func (s Sequence) Encode() string {
	return base64.StdEncoding.EncodeToString([]byte(s.String()))
}

// Matches reports whether the token still identifies the given stored
// revision. Both components must agree.
func (s Sequence) Matches(seqNo, primaryTerm int64) bool {
	return s.SeqNo == seqNo && s.PrimaryTerm == primaryTerm
}

// Decode parses an opaque transport token back into a [Sequence].
//
// A malformed token is always a client-input error (never a server error):
// the token either fails base64 decoding, does not contain exactly two
// comma-separated parts, or a part is not an integer.
func Decode(token string) (Sequence, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Sequence{}, apperr.BadRequest("Supplied sequence is not a valid token")
	}

	parts := strings.Split(string(raw), ",")
	if len(parts) != 2 {
		return Sequence{}, apperr.BadRequest("Supplied sequence is not a valid token")
	}

	seqNo, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Sequence{}, apperr.BadRequest("Supplied sequence is not a valid token")
	}

	primaryTerm, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Sequence{}, apperr.BadRequest("Supplied sequence is not a valid token")
	}

	return Sequence{SeqNo: seqNo, PrimaryTerm: primaryTerm}, nil
}
