package controller

import (
	"net/http"
	"strconv"

	"spi-dashboard/internal/modules/spi/types"
	"spi-dashboard/internal/modules/spi/views"
)

const tablePageSize = 50

// parsePage returns the 1-based page number from the request (default 1, min 1).
func parsePage(r *http.Request) int {
	s := r.URL.Query().Get("page")
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// buildPageItems returns page numbers and ellipsis for the pagination bar.
func buildPageItems(totalPages, currentPage int) []views.PaginationItem {
	if totalPages <= 0 {
		return nil
	}
	const window = 2
	show := map[int]bool{1: true, totalPages: true}
	for p := currentPage - window; p <= currentPage+window; p++ {
		if p >= 1 && p <= totalPages {
			show[p] = true
		}
	}
	var items []views.PaginationItem
	prev := 0
	for p := 1; p <= totalPages; p++ {
		if !show[p] {
			continue
		}
		if prev != 0 && p > prev+1 {
			items = append(items, views.PaginationItem{Ellipsis: true})
		}
		items = append(items, views.PaginationItem{Page: p})
		prev = p
	}
	return items
}

// tablePage slices one page out of tbl. Pages past the end are clamped to
// the last page.
func tablePage(tbl types.Table, page int) views.TableData {
	total := tbl.Len()
	totalPages := (total + tablePageSize - 1) / tablePageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	offset := (page - 1) * tablePageSize
	rows := tbl.Page(offset, tablePageSize)

	data := views.TableData{
		Columns:     tbl.Columns,
		Rows:        rows,
		TotalRows:   total,
		CurrentPage: page,
		TotalPages:  totalPages,
		HasPrev:     page > 1,
		HasNext:     page < totalPages,
		PrevPage:    page - 1,
		NextPage:    page + 1,
		PageItems:   buildPageItems(totalPages, page),
	}
	if len(rows) > 0 {
		data.FirstRow = offset + 1
		data.LastRow = offset + len(rows)
	}
	return data
}
