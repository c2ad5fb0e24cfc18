package pagefmt

// Alignment utilities for page-granular sizes.

// AlignPage returns n aligned up to the next page boundary.
//
// Example:
//
//	AlignPage(1)    = 4096
//	AlignPage(4096) = 4096
//	AlignPage(4097) = 8192
func AlignPage(n uintptr) uintptr {
	return (n + PageMask) &^ PageMask
}

// CheckedAlignPage is AlignPage that reports false instead of wrapping to a
// small value when n is within a page of the top of the address space.
func CheckedAlignPage(n uintptr) (uintptr, bool) {
	a := AlignPage(n)
	return a, a >= n
}

// AlignHugePage returns n aligned up to the next 2 MiB boundary.
func AlignHugePage(n uintptr) uintptr {
	return (n + HugePageMask) &^ HugePageMask
}

// IsPageAligned reports whether n is a multiple of PageSize.
func IsPageAligned(n uintptr) bool {
	return n&PageMask == 0
}

// Pages returns the number of whole pages in n. n must be page aligned.
func Pages(n uintptr) int {
	return int(n >> PageShift)
}

// Bytes converts a page count to a byte size.
func Bytes(npages int) uintptr {
	return uintptr(npages) << PageShift
}
