package template

import (
	"sync"

	"github.com/ohler55/ojg/oj"

	"github.com/virtserve/virtserve/pkg/virt"
)

// Context carries the request data templates render against. The body is
// parsed as JSON lazily, once, on first structured access.
type Context struct {
	req *virt.RequestContext

	once   sync.Once
	parsed interface{}
	bodyOK bool
}

// NewContext wraps a request context for rendering. A nil request yields
// a context where every request reference renders empty.
func NewContext(req *virt.RequestContext) *Context {
	return &Context{req: req}
}

// parsedBody returns the JSON-parsed request body, ok=false when the body
// is empty or not valid JSON.
func (c *Context) parsedBody() (interface{}, bool) {
	if c.req == nil || len(c.req.Body) == 0 {
		return nil, false
	}
	c.once.Do(func() {
		val, err := oj.Parse(c.req.Body)
		if err != nil {
			return
		}
		c.parsed = val
		c.bodyOK = true
	})
	return c.parsed, c.bodyOK
}
