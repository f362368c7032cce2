package util

const DefaultPageSize = 20

// Window clamps a page/size pair into an offset and limit.
func Window(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = DefaultPageSize
	}
	return (page - 1) * size, size
}
