// Package identifier encodes and decodes human-readable registration
// identifiers.
//
// Format: BTNM-{ExamType}-{Status}-{Number}
//
//	ExamType: F (foundation, classes 7-9) or C (regular, classes 10-11)
//	Status:   D (draft) or C (completed)
//	Number:   5-digit zero-padded sequence (00001, 00002, ...)
//
// Examples: BTNM-F-D-00001, BTNM-C-C-00019.
//
// The sequence segment never changes after assignment; only the status letter
// is rewritten when a registration completes.
package identifier

import (
	"fmt"
	"strconv"
	"strings"

	"examreg/pkg/derrors"
)

// Prefix is the fixed leading segment of every registration identifier.
const Prefix = "BTNM"

// ExamType selects the fee tier and the identifier's type segment.
type ExamType string

const (
	ExamTypeFoundation ExamType = "foundation"
	ExamTypeRegular    ExamType = "regular"
)

// Status is the lifecycle segment of the identifier.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
)

// Parts is a decoded identifier.
type Parts struct {
	ExamType ExamType
	Status   Status
	Sequence int64
}

// Encode builds the identifier string. Pure.
func Encode(examType ExamType, status Status, sequence int64) string {
	return fmt.Sprintf("%s-%s-%s-%05d", Prefix, examTypeCode(examType), statusCode(status), sequence)
}

// Decode parses an identifier, rejecting anything that is not exactly the
// four-segment shape with the fixed prefix and recognized code letters.
func Decode(s string) (Parts, error) {
	segments := strings.Split(s, "-")
	if len(segments) != 4 {
		return Parts{}, malformed(s, "expected 4 segments")
	}
	if segments[0] != Prefix {
		return Parts{}, malformed(s, "wrong prefix")
	}

	var examType ExamType
	switch segments[1] {
	case "F":
		examType = ExamTypeFoundation
	case "C":
		examType = ExamTypeRegular
	default:
		return Parts{}, malformed(s, "unknown exam type code")
	}

	var status Status
	switch segments[2] {
	case "D":
		status = StatusDraft
	case "C":
		status = StatusCompleted
	default:
		return Parts{}, malformed(s, "unknown status code")
	}

	// Digits only: strconv alone would also accept a leading sign.
	seg := segments[3]
	if seg == "" {
		return Parts{}, malformed(s, "non-numeric sequence")
	}
	for _, c := range seg {
		if c < '0' || c > '9' {
			return Parts{}, malformed(s, "non-numeric sequence")
		}
	}
	sequence, err := strconv.ParseInt(seg, 10, 64)
	if err != nil {
		return Parts{}, malformed(s, "non-numeric sequence")
	}

	return Parts{ExamType: examType, Status: status, Sequence: sequence}, nil
}

// Recode rewrites the status segment in place, leaving the exam type and
// sequence segments byte-identical. Pure.
func Recode(s string, newStatus Status) (string, error) {
	segments := strings.Split(s, "-")
	if len(segments) != 4 || segments[0] != Prefix {
		return "", malformed(s, "expected 4 segments with fixed prefix")
	}
	if _, err := Decode(s); err != nil {
		return "", err
	}
	return strings.Join([]string{segments[0], segments[1], statusCode(newStatus), segments[3]}, "-"), nil
}

func examTypeCode(examType ExamType) string {
	if examType == ExamTypeFoundation {
		return "F"
	}
	return "C"
}

func statusCode(status Status) string {
	if status == StatusDraft {
		return "D"
	}
	return "C"
}

func malformed(s, reason string) error {
	return derrors.Newf(derrors.CodeMalformedIdentifier, "invalid registration identifier %q: %s", s, reason)
}
