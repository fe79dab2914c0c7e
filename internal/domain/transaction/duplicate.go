package transaction

// DuplicateOf pairs a later occurrence with the first item that carried the
// same fingerprint in the batch.
type DuplicateOf[T any] struct {
	Item  T
	Of    T
	Index int // position of Item in the input batch
}

// Partition is the result of splitting a batch by fingerprint.
type Partition[T any] struct {
	Unique     []T
	Duplicates []DuplicateOf[T]
}

// PartitionByFingerprint splits batch into first occurrences and repeats,
// preserving source order in both halves. Items whose key is empty are kept as
// unique; they never collide.
func PartitionByFingerprint[T any](batch []T, fingerprint func(T) string) Partition[T] {
	part := Partition[T]{
		Unique: make([]T, 0, len(batch)),
	}
	seen := make(map[string]T, len(batch))

	for i, item := range batch {
		key := fingerprint(item)
		if key == "" {
			part.Unique = append(part.Unique, item)
			continue
		}
		if first, ok := seen[key]; ok {
			part.Duplicates = append(part.Duplicates, DuplicateOf[T]{Item: item, Of: first, Index: i})
			continue
		}
		seen[key] = item
		part.Unique = append(part.Unique, item)
	}

	return part
}

// PartitionRaw is PartitionByFingerprint for raw statement rows.
func PartitionRaw(batch []*RawTransaction) Partition[*RawTransaction] {
	return PartitionByFingerprint(batch, func(r *RawTransaction) string { return r.Fingerprint })
}
