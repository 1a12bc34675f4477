package usecase

import (
	"strconv"
)

func formatQty(n int64) string {
	return strconv.FormatInt(n, 10)
}

func normalizePage(page, limit, defLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = defLimit
	}
	return page, limit
}
