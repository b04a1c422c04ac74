package config

import (
	"sort"
	"strings"
)

type Pagination string

const (
	PaginationCursor Pagination = "cursor"
	PaginationNone   Pagination = "none"
)

// Extensions enumerates the optional API capabilities.
type Extensions struct {
	Query            bool
	Sort             bool
	Fields           bool
	Filter           bool
	FreeText         bool
	Transactions     bool
	BulkTransactions bool
	CollectionSearch bool
	Pagination       Pagination
}

func AllExtensions() Extensions {
	return Extensions{
		Query:            true,
		Sort:             true,
		Fields:           true,
		Filter:           true,
		FreeText:         true,
		Transactions:     true,
		BulkTransactions: true,
		CollectionSearch: true,
		Pagination:       PaginationCursor,
	}
}

// ParseExtensions reads a comma separated list; empty enables everything.
func ParseExtensions(s string) Extensions {
	if strings.TrimSpace(s) == "" {
		return AllExtensions()
	}
	e := Extensions{Pagination: PaginationNone}
	for p := range strings.SplitSeq(s, ",") {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "query":
			e.Query = true
		case "sort":
			e.Sort = true
		case "fields":
			e.Fields = true
		case "filter":
			e.Filter = true
		case "free_text":
			e.FreeText = true
		case "transaction", "transactions":
			e.Transactions = true
		case "bulk_transactions":
			e.BulkTransactions = true
		case "collection_search":
			e.CollectionSearch = true
		case "pagination":
			e.Pagination = PaginationCursor
		}
	}
	return e
}

// Names lists enabled capabilities, sorted.
func (e Extensions) Names() []string {
	var out []string
	add := func(ok bool, name string) {
		if ok {
			out = append(out, name)
		}
	}
	add(e.Query, "query")
	add(e.Sort, "sort")
	add(e.Fields, "fields")
	add(e.Filter, "filter")
	add(e.FreeText, "free_text")
	add(e.Transactions, "transaction")
	add(e.BulkTransactions, "bulk_transactions")
	add(e.CollectionSearch, "collection_search")
	add(e.Pagination == PaginationCursor, "pagination")
	sort.Strings(out)
	return out
}
