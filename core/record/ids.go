package record

import "time"

var NowFunc = time.Now // mockable

// idGen hands out time-derived ids (unix milliseconds), bumped past the last one so
// two records created within the same millisecond never collide.
type idGen struct {
	last int64
}

func (g *idGen) next() int64 {
	id := NowFunc().UnixNano() / int64(time.Millisecond)
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// observe raises the floor so ids loaded from elsewhere are never reissued.
func (g *idGen) observe(id int64) {
	if id > g.last {
		g.last = id
	}
}
