// Package operand implements typed operands and the persistent operand stack
// that carries messages between reactors.
//
// Operand payloads are encoded big-endian with no framing (a value occupies
// exactly its type's size) and stored in cell chains owned by a
// cell.Allocator. String arrays are the one framed encoding: a 4-byte count,
// then per element a 4-byte length followed by UTF-8 bytes.
//
// STACKS:
// A *Stack is an immutable node. Pushing allocates a new node whose payload
// chain links to the chain of the node below, so the allocator's reference
// counts keep every suffix alive for as long as something above it is held.
// Stacks share suffixes freely; nothing is ever copied on push or pop.
//
// OWNERSHIP:
// Holding a *Stack means owning one reference to it.
//   - Push*, Dup, Peek and the As* accessors leave the receiver untouched.
//   - Pop, Swap and every arithmetic or conversion op consume the receiver's
//     reference and return an owned result. On error nothing is consumed.
//   - Retain adds a reference for a second holder; Release drops one.
//
// Once the last reference to a node is released its payload cells are freed,
// and reading it fails with cell.ErrInvalidPointer.
package operand
