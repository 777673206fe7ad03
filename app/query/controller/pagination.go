package controller

import (
	"net/http"
	"strconv"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errInvalidLimit
	}
	return min(n, maxLimit), nil
}

func parseEra(v string) (uint32, error) {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errInvalidEra
	}
	return uint32(n), nil
}

var (
	errInvalidLimit = &parseError{msg: "invalid limit"}
	errInvalidEra   = &parseError{msg: "invalid era"}
)

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
