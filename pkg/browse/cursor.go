package browse

// pageCursor tracks the append-only paging position of a view.
type pageCursor struct {
	next    int // next page number to fetch, 1-based
	hasMore bool
	total   int
}

func newPageCursor() pageCursor {
	return pageCursor{next: 1, hasMore: true}
}

// advance moves the cursor past a fetched page.
func (c *pageCursor) advance(p *Page) {
	c.next = p.PageNumber + 1
	c.hasMore = p.HasMore
	c.total = p.TotalCount
}

func (c *pageCursor) reset() {
	c.next = 1
	c.hasMore = true
	c.total = 0
}
