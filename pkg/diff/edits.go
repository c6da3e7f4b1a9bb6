package diff

import (
	"github.com/pmezard/go-difflib/difflib"
)

// EditOp is one step of an ordered list edit script
type EditOp string

const (
	EditInsert  EditOp = "insert"
	EditDelete  EditOp = "delete"
	EditReplace EditOp = "replace"
	EditMove    EditOp = "move"
)

// Edit turns Old at OldIndex of the live list into New at NewIndex of the desired list
type Edit struct {
	Op       EditOp
	OldIndex int
	NewIndex int
	Old      []string
	New      []string
}

// editScript computes a minimal edit script between two lists. Single elements
// deleted in one place and inserted in another are reported as moves.
func editScript(from, to []string) []Edit {
	m := difflib.NewMatcher(from, to)
	var edits []Edit
	for _, op := range m.GetOpCodes() {
		e := Edit{
			OldIndex: op.I1,
			NewIndex: op.J1,
			Old:      from[op.I1:op.I2],
			New:      to[op.J1:op.J2],
		}
		switch op.Tag {
		case 'i':
			e.Op = EditInsert
		case 'd':
			e.Op = EditDelete
		case 'r':
			e.Op = EditReplace
		default:
			continue
		}
		edits = append(edits, e)
	}
	return detectMoves(edits)
}

func detectMoves(edits []Edit) []Edit {
	merged := make([]bool, len(edits))
	for i := range edits {
		if merged[i] || edits[i].Op != EditDelete || len(edits[i].Old) != 1 {
			continue
		}
		for j := range edits {
			if merged[j] || edits[j].Op != EditInsert || len(edits[j].New) != 1 || edits[j].New[0] != edits[i].Old[0] {
				continue
			}
			edits[i] = Edit{
				Op:       EditMove,
				OldIndex: edits[i].OldIndex,
				NewIndex: edits[j].NewIndex,
				Old:      edits[i].Old,
				New:      edits[j].New,
			}
			merged[j] = true
			break
		}
	}

	out := edits[:0]
	for i, e := range edits {
		if !merged[i] {
			out = append(out, e)
		}
	}
	return out
}
