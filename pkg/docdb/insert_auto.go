package docdb

import "github.com/google/uuid"

// InsertAuto assigns a fresh store-generated id to doc, writes it, and
// returns the assigned id. This is how the op collection gets its
// store-assigned "_id" (§3): the caller never picks the id itself.
func (c *Collection) InsertAuto(doc map[string]any) (id string, err error) {
	id = uuid.NewString()
	err = c.Update(func(txn *Txn) error {
		return txn.Set(id, doc)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Txn.InsertAuto is the transactional form of InsertAuto, for callers (the
// commit coordinator) that need the op row and its secondary index
// entries written atomically.
func (t *Txn) InsertAuto(doc map[string]any) (id string, err error) {
	id = uuid.NewString()
	if err := t.Set(id, doc); err != nil {
		return "", err
	}
	return id, nil
}
