// Package paginate splits slices into fixed-size pages without copying.
package paginate

import "errors"

var ErrInvalidPageSize = errors.New("page size must be positive")

// Page is a view into the paginated slice. Its capacity ends at the page
// boundary, so appending to a page never overwrites the next one.
type Page[T any] []T

// Paginate returns ceil(len(items)/size) consecutive pages of size items,
// the last one possibly shorter. Concatenating the pages yields items.
func Paginate[T any](items []T, size int) ([]Page[T], error) {
	if size <= 0 {
		return nil, ErrInvalidPageSize
	}
	pages := make([]Page[T], 0, (len(items)+size-1)/size)
	for lo := 0; lo < len(items); lo += size {
		hi := min(lo+size, len(items))
		pages = append(pages, Page[T](items[lo:hi:hi]))
	}
	return pages, nil
}

// At returns page n (zero-based) and the total page count. An out-of-range n
// yields an empty page.
func At[T any](items []T, size, n int) (Page[T], int, error) {
	pages, err := Paginate(items, size)
	if err != nil {
		return nil, 0, err
	}
	if n < 0 || n >= len(pages) {
		return Page[T]{}, len(pages), nil
	}
	return pages[n], len(pages), nil
}
