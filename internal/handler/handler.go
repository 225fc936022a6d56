package handler

import (
	"net/http"
	"strconv"
)

const BankName = "Lumenbank"

type queryStringValues struct {
	Status string
	Limit  int
	Offset int
}

func retrieveUrlQueryValues(r *http.Request) *queryStringValues {
	var queryValues = &queryStringValues{}

	queryValues.Status = r.URL.Query().Get("status")

	limitStr := r.URL.Query().Get("limit")
	pageStr := r.URL.Query().Get("page")

	// Default pagination values
	offset := 0
	limit := 10

	if limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	queryValues.Limit = limit

	if pageStr != "" {
		if parsedPage, err := strconv.Atoi(pageStr); err == nil && parsedPage >= 1 {
			offset = (parsedPage - 1) * limit
		}
	}
	queryValues.Offset = offset

	return queryValues
}
