// Package cell implements the cellular allocator that backs message payloads.
//
// A heap is a preallocated array of fixed-size cells. A payload is written
// into as many cells as it needs, chained through each cell's next link, and
// addressed by a Pointer that encodes (lifetime, index) of the head cell.
//
// LIFETIMES:
// Every cell carries a lifetime counter that is incremented whenever the cell
// is freed. A Pointer is valid only while its lifetime matches the cell's
// current lifetime, so a pointer kept past a free is detected on the next
// dereference instead of silently aliasing whatever reused the cell.
//
// REFERENCE COUNTING:
// The head cell of a chain holds the reference count. Alloc hands out the
// first reference. When Decrement drops the count to zero, every cell of the
// chain returns to the free list and the chain's below link (if any) is
// decremented in turn, which lets callers build persistent linked structures
// whose tails stay alive for as long as any head references them.
//
// ENCODING:
// Cells store 32-bit words. Payload bytes are packed four per word in
// big-endian order; a chain records its exact byte length so reads return
// the payload bit for bit.
//
// Thread-safety: every Allocator in this package is safe for concurrent use.
// Each heap serializes free-list and ref-count mutation behind one mutex.
package cell
