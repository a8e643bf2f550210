package buffer

import (
	"fmt"

	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

// Operation is one buffered index change. The set of implementations is
// closed: *AddRemoveOperation, *ClearContextOperation and *ClearOperation.
type Operation interface {
	fmt.Stringer
	operation()
}

// AddRemoveOperation collects statement additions and removals between two
// clears. A statement is never in both sets.
type AddRemoveOperation struct {
	Added   *rdf.StatementSet
	Removed *rdf.StatementSet

	// TypeAdded maps subjects that gained a type statement to whether one of
	// their new types is indexed.
	TypeAdded map[rdf.Resource]bool
	// TypeRemoved holds subjects that lost an indexed type statement.
	TypeRemoved map[rdf.Resource]struct{}
}

func newAddRemoveOperation() *AddRemoveOperation {
	return &AddRemoveOperation{
		Added:       rdf.NewStatementSet(),
		Removed:     rdf.NewStatementSet(),
		TypeAdded:   make(map[rdf.Resource]bool),
		TypeRemoved: make(map[rdf.Resource]struct{}),
	}
}

func (*AddRemoveOperation) operation() {}

func (op *AddRemoveOperation) add(st rdf.Statement) {
	if !op.Removed.Remove(st) {
		op.Added.Add(st)
	}
}

func (op *AddRemoveOperation) remove(st rdf.Statement) {
	if !op.Added.Remove(st) {
		op.Removed.Add(st)
	}
}

func (op *AddRemoveOperation) addType(subject rdf.Resource, indexed bool) {
	if _, ok := op.TypeRemoved[subject]; ok {
		delete(op.TypeRemoved, subject)
		return
	}
	op.TypeAdded[subject] = op.TypeAdded[subject] || indexed
}

func (op *AddRemoveOperation) removeType(subject rdf.Resource) {
	if _, ok := op.TypeAdded[subject]; ok {
		delete(op.TypeAdded, subject)
		return
	}
	op.TypeRemoved[subject] = struct{}{}
}

// Empty reports whether replaying the operation would change nothing.
func (op *AddRemoveOperation) Empty() bool {
	return op.Added.Len() == 0 && op.Removed.Len() == 0 &&
		len(op.TypeAdded) == 0 && len(op.TypeRemoved) == 0
}

func (op *AddRemoveOperation) String() string {
	return fmt.Sprintf("AddRemove(+%d -%d types +%d -%d)",
		op.Added.Len(), op.Removed.Len(), len(op.TypeAdded), len(op.TypeRemoved))
}

// ClearContextOperation deletes the documents of some contexts. A nil
// context denotes the default graph.
type ClearContextOperation struct {
	Contexts []rdf.Resource
}

func (*ClearContextOperation) operation() {}

func (op *ClearContextOperation) String() string {
	return fmt.Sprintf("ClearContexts(%d)", len(op.Contexts))
}

// ClearOperation deletes every document.
type ClearOperation struct{}

func (*ClearOperation) operation() {}

func (*ClearOperation) String() string { return "Clear" }
