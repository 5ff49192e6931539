package engine

// store is a queue backing store. Callers hold the queue lock and never pop
// from an empty store.
type store[E any] interface {
	len() int
	pushBack(v E)
	popFront() E
	popBack() E
	front() E
	each(f func(E))
}

func newStore[E any](kind QueueKind, capacity, backlog int) store[E] {
	if kind == LinkedQueue {
		return &linkedStore[E]{}
	}
	return newRingStore[E](capacity, backlog)
}

// ringStore is a growable ring buffer. It preallocates backlog slots and
// doubles on demand, never beyond the queue's capacity.
type ringStore[E any] struct {
	buf  []E
	head int
	n    int
	max  int
}

const minRingSize = 16

func newRingStore[E any](capacity, backlog int) *ringStore[E] {
	size := min(max(backlog, minRingSize), capacity)
	return &ringStore[E]{buf: make([]E, size), max: capacity}
}

func (r *ringStore[E]) len() int { return r.n }

func (r *ringStore[E]) grow() {
	size := min(max(2*len(r.buf), minRingSize), r.max)
	buf := make([]E, size)
	for i := 0; i < r.n; i++ {
		buf[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.buf = buf
	r.head = 0
}

func (r *ringStore[E]) pushBack(v E) {
	if r.n == len(r.buf) {
		r.grow()
	}
	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
}

func (r *ringStore[E]) popFront() E {
	var zero E
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return v
}

func (r *ringStore[E]) popBack() E {
	var zero E
	i := (r.head + r.n - 1) % len(r.buf)
	v := r.buf[i]
	r.buf[i] = zero
	r.n--
	return v
}

func (r *ringStore[E]) front() E {
	return r.buf[r.head]
}

func (r *ringStore[E]) each(f func(E)) {
	for i := 0; i < r.n; i++ {
		f(r.buf[(r.head+i)%len(r.buf)])
	}
}

const segmentSize = 32

type segment[E any] struct {
	data       [segmentSize]E
	prev, next *segment[E]
}

// linkedStore keeps items in a doubly linked list of fixed-size segments.
// hi indexes the first item in head, ti one past the last item in tail.
type linkedStore[E any] struct {
	head, tail *segment[E]
	hi, ti     int
	n          int
}

func (l *linkedStore[E]) len() int { return l.n }

func (l *linkedStore[E]) reset() {
	if l.head != nil {
		l.head.next = nil
	}
	l.tail = l.head
	l.hi, l.ti = 0, 0
}

func (l *linkedStore[E]) pushBack(v E) {
	switch {
	case l.tail == nil:
		l.head = &segment[E]{}
		l.tail = l.head
	case l.ti == segmentSize:
		seg := &segment[E]{prev: l.tail}
		l.tail.next = seg
		l.tail = seg
		l.ti = 0
	}
	l.tail.data[l.ti] = v
	l.ti++
	l.n++
}

func (l *linkedStore[E]) popFront() E {
	var zero E
	v := l.head.data[l.hi]
	l.head.data[l.hi] = zero
	l.hi++
	l.n--
	switch {
	case l.n == 0:
		l.reset()
	case l.hi == segmentSize:
		l.head = l.head.next
		l.head.prev = nil
		l.hi = 0
	}
	return v
}

func (l *linkedStore[E]) popBack() E {
	var zero E
	l.ti--
	v := l.tail.data[l.ti]
	l.tail.data[l.ti] = zero
	l.n--
	switch {
	case l.n == 0:
		l.reset()
	case l.ti == 0:
		l.tail = l.tail.prev
		l.tail.next = nil
		l.ti = segmentSize
	}
	return v
}

func (l *linkedStore[E]) front() E {
	return l.head.data[l.hi]
}

func (l *linkedStore[E]) each(f func(E)) {
	i := l.hi
	for seg := l.head; seg != nil && l.n > 0; seg = seg.next {
		end := segmentSize
		if seg == l.tail {
			end = l.ti
		}
		for ; i < end; i++ {
			f(seg.data[i])
		}
		i = 0
	}
}
