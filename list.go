package unpack

import "fmt"

// List collects every entry of the catalog in catalog order.
func List(cat Catalog) ([]Entry, error) {
	entries := make([]Entry, 0, cat.Len())
	for i := range cat.Len() {
		entry, err := cat.Entry(i)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
