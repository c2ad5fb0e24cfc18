// Package pagefmt holds the page geometry shared by the allocator packages:
// base page and huge page sizes, alignment helpers and page/byte conversions.
// Keeping these in one place lets the slab, backing-store and shard layers
// agree on what "one page" means without importing each other.
package pagefmt

const (
	// PageShift is log2 of the base page size.
	PageShift = 12

	// PageSize is the allocation granule of every slab (4 KiB).
	PageSize = 1 << PageShift

	// PageMask masks the in-page offset of an address.
	PageMask = PageSize - 1

	// HugePageShift is log2 of the huge page size.
	HugePageShift = 21

	// HugePageSize is the size of one transparent huge page on x86-64 and
	// arm64 Linux (2 MiB). Backing-store reservations are multiples of it.
	HugePageSize = 1 << HugePageShift

	// HugePageMask masks the in-huge-page offset of an address.
	HugePageMask = HugePageSize - 1

	// PagesPerHugePage is the number of base pages in one huge page.
	PagesPerHugePage = HugePageSize / PageSize
)
