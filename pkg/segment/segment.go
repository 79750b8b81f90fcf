// Package segment splits an ordered trajectory into runs of equal label so
// that one representative point per run is queried instead of every point.
package segment

import (
	"errors"
	"fmt"
)

// Policy selects the representative point of a block.
type Policy string

const (
	// RepresentativeFirst uses the first point of each block.
	RepresentativeFirst Policy = "first"
	// RepresentativeMiddle uses the point at Start+(End-Start)/2.
	RepresentativeMiddle Policy = "middle"

	// InvalidLabel marks points without a usable coordinate. Blocks carrying
	// it are never queried.
	InvalidLabel = "\x00invalid"
)

// ErrUnknownPolicy is returned for an unsupported representative policy.
var ErrUnknownPolicy = errors.New("unknown representative policy")

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case RepresentativeFirst, RepresentativeMiddle:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Block is a maximal run of consecutive positions sharing a label. Start,
// End and Representative are positions in the segmented slice, End
// inclusive. IDs start at 1 and grow by one per label change.
type Block struct {
	ID             int    `json:"block_id"`
	Start          int    `json:"start_index"`
	End            int    `json:"end_index"`
	Label          string `json:"label"`
	Representative int    `json:"representative"`
}

// Len is the number of positions in the block.
func (b Block) Len() int {
	return b.End - b.Start + 1
}

// Invalid reports whether the block holds points without coordinates.
func (b Block) Invalid() bool {
	return b.Label == InvalidLabel
}

// Segment groups items into blocks: a new block starts whenever an item's
// label differs from the label of the item before it. Every position
// belongs to exactly one block. An unknown policy falls back to
// RepresentativeFirst.
func Segment[T any](items []T, label func(T) string, policy Policy) []Block {
	if len(items) == 0 {
		return nil
	}

	var (
		blocks  []Block
		current = Block{ID: 1, Start: 0, Label: label(items[0])}
	)

	for i := 1; i < len(items); i++ {
		l := label(items[i])
		if l == current.Label {
			continue
		}

		current.End = i - 1
		blocks = append(blocks, finish(current, policy))

		current = Block{ID: current.ID + 1, Start: i, Label: l}
	}

	current.End = len(items) - 1

	return append(blocks, finish(current, policy))
}

func finish(b Block, policy Policy) Block {
	switch policy {
	case RepresentativeMiddle:
		b.Representative = b.Start + (b.End-b.Start)/2
	default:
		b.Representative = b.Start
	}

	return b
}
