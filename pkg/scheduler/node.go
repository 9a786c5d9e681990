package scheduler

import (
	"github.com/cuemby/bfqsched/pkg/entity"
	"github.com/cuemby/bfqsched/pkg/queue"
)

// node is the tagged variant carried by the arena (spec §9 "Polymorphism
// over {leaf queue, group}" — a tag dispatched on at the point of
// descent, rather than an interface hierarchy).
type node struct {
	kind entity.Kind
	q    *queue.Queue // set iff kind == entity.KindQueue
	g    *Group       // set iff kind == entity.KindGroup
}

func (n *node) entity() *entity.Entity {
	if n.kind == entity.KindQueue {
		return n.q.Entity
	}
	return n.g.Entity
}
