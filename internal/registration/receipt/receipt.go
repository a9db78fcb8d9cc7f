// Package receipt derives receipt numbers for paid registrations.
//
// Two paths produce a number:
//
//   - Independent: pulls the next value of the receiptNumber counter and
//     formats it as btnmrzp0001 (4-digit padding).
//   - Derived: reuses the sequence already embedded in the registration
//     identifier and formats it as btnmrzp00001 (5-digit padding).
//
// The padding widths differ between the two paths. That asymmetry is legacy:
// receipt numbers are durable external artifacts, and unifying the widths
// would fork data already issued. See DESIGN.md.
package receipt

import (
	"context"
	"fmt"

	"examreg/internal/registration/identifier"
	"examreg/internal/sequence"
)

// Prefix is the fixed leading run of every receipt number.
const Prefix = "btnmrzp"

// FromIdentifier derives a receipt number from a registration identifier's
// sequence segment. Pure; returns a malformed-identifier error when the input
// does not decode, and the caller must then fall back to Independent so every
// paid registration still ends up with exactly one receipt number.
func FromIdentifier(registrationID string) (string, error) {
	parts, err := identifier.Decode(registrationID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", Prefix, parts.Sequence), nil
}

// Generator issues independent receipt numbers from the shared counter.
type Generator struct {
	allocator *sequence.Allocator
}

func NewGenerator(allocator *sequence.Allocator) *Generator {
	return &Generator{allocator: allocator}
}

// Independent allocates a fresh receipt number. Mutates the shared counter.
func (g *Generator) Independent(ctx context.Context) (string, error) {
	seq, err := g.allocator.Next(ctx, sequence.CounterReceiptNumber)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", Prefix, seq), nil
}
