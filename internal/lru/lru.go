// Package lru provides the intrusive recency list used by tile caches to
// order unreferenced tiles for eviction.
package lru

// Node is an element of a List.
// The node stores a key so that the owner can find its map entry in O(1)
// when the node is evicted.
type Node[K comparable] struct {
	key  K
	prev *Node[K]
	next *Node[K]
	list *List[K]
}

// Key returns the key stored in the node.
func (n *Node[K]) Key() K {
	return n.key
}

// Newer returns the next more recently used node, or nil at the head.
func (n *Node[K]) Newer() *Node[K] {
	return n.prev
}

// List is a doubly-linked list in recency order.
// The list is not thread-safe; callers must handle synchronization.
//
// The head is the most recently used, tail is least recently used.
type List[K comparable] struct {
	head *Node[K]
	tail *Node[K]
	len  int
}

// New creates an empty list.
func New[K comparable]() *List[K] {
	return &List[K]{}
}

// Len returns the number of nodes in the list.
func (l *List[K]) Len() int {
	return l.len
}

// PushFront adds a new node at the front (most recently used).
// Returns the created node for later removal.
func (l *List[K]) PushFront(key K) *Node[K] {
	node := &Node[K]{key: key, list: l}
	if l.head == nil {
		l.head = node
		l.tail = node
	} else {
		node.next = l.head
		l.head.prev = node
		l.head = node
	}
	l.len++
	return node
}

// MoveToFront moves an existing node to the front (most recently used).
func (l *List[K]) MoveToFront(node *Node[K]) {
	if node == nil || node.list != l || node == l.head {
		return
	}
	l.unlink(node)
	node.list = l
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
	l.len++
}

// Remove removes a node from the list.
// Removing a node that is no longer in the list is a no-op.
func (l *List[K]) Remove(node *Node[K]) {
	if node == nil || node.list != l {
		return
	}
	l.unlink(node)
}

// Oldest returns the least recently used node without removing it,
// or nil if the list is empty. Use Node.Newer to walk towards the head.
func (l *List[K]) Oldest() *Node[K] {
	return l.tail
}

// RemoveOldest removes and returns the key of the least recently used node.
// Returns zero value and false if list is empty.
func (l *List[K]) RemoveOldest() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}
	node := l.tail
	l.unlink(node)
	return node.key, true
}

// Clear removes all nodes from the list.
func (l *List[K]) Clear() {
	for n := l.head; n != nil; {
		next := n.next
		n.prev, n.next, n.list = nil, nil, nil
		n = next
	}
	l.head = nil
	l.tail = nil
	l.len = 0
}

// unlink removes a node from the list and clears its pointers.
func (l *List[K]) unlink(node *Node[K]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	node.list = nil
	l.len--
}
