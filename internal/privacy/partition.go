package privacy

import (
	"fmt"

	"github.com/inferloop/tabsdc/internal/dataset"
)

// EquivalenceClass is the set of records sharing identical (generalized)
// quasi-identifier values. Rows holds the record indices in input order.
type EquivalenceClass struct {
	Identifier string
	Rows       []int
	Size       int
}

// PartitionByQuasiIdentifiers groups the dataset's records by their
// quasi-identifier tuple. The partition depends only on cell values, never
// on row order; within a class, rows keep their input order. Classes are
// returned in order of first appearance.
func PartitionByQuasiIdentifiers(ds *dataset.Dataset, quasiIdentifiers []string) ([]*EquivalenceClass, error) {
	if err := ds.CheckColumns(quasiIdentifiers); err != nil {
		return nil, err
	}

	classMap := make(map[string]*EquivalenceClass)
	classes := make([]*EquivalenceClass, 0)

	for i := 0; i < ds.Len(); i++ {
		classID := equivalenceClassID(ds.Row(i), quasiIdentifiers)

		if class, exists := classMap[classID]; exists {
			class.Rows = append(class.Rows, i)
			class.Size++
		} else {
			class := &EquivalenceClass{
				Identifier: classID,
				Rows:       []int{i},
				Size:       1,
			}
			classMap[classID] = class
			classes = append(classes, class)
		}
	}

	return classes, nil
}

func equivalenceClassID(rec dataset.Record, quasiIdentifiers []string) string {
	values := make([]string, 0, len(quasiIdentifiers))
	for _, qi := range quasiIdentifiers {
		values = append(values, fmt.Sprintf("%v", rec[qi]))
	}
	return fmt.Sprintf("%v", values)
}
