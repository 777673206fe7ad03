package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/db"
)

type pagedResponse[T any] struct {
	Data  []T `json:"data"`
	Limit int `json:"limit,omitempty"`
}

func newPage[T any](items []T, limit int) pagedResponse[T] {
	if items == nil {
		items = []T{}
	}
	return pagedResponse[T]{Data: items, Limit: limit}
}

func (c *Controller) storeError(w http.ResponseWriter, route string, err error) {
	if db.IsNotFound(err) {
		c.writeError(w, http.StatusNotFound, "not found")
		return
	}
	c.App.Logger.Error("Store query failed", zap.String("route", route), zap.Error(err))
	c.writeError(w, http.StatusInternalServerError, "query failed")
}

// HandleEras lists eras, newest first.
func (c *Controller) HandleEras(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		c.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	eras, err := c.App.Store.ListEras(r.Context(), limit)
	if err != nil {
		c.storeError(w, "eras", err)
		return
	}
	c.writeJSON(w, http.StatusOK, newPage(eras, limit))
}

// HandleEraPayouts lists the validator payouts computed for one era, ordered by validator.
func (c *Controller) HandleEraPayouts(w http.ResponseWriter, r *http.Request) {
	era, err := parseEra(mux.Vars(r)["era"])
	if err != nil {
		c.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		c.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payouts, err := c.App.Store.ListPayoutsByEra(r.Context(), era, limit)
	if err != nil {
		c.storeError(w, "eraPayouts", err)
		return
	}
	c.writeJSON(w, http.StatusOK, newPage(payouts, limit))
}

func (c *Controller) HandleValidatorPayouts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		c.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payouts, err := c.App.Store.ListPayoutsByValidator(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		c.storeError(w, "validatorPayouts", err)
		return
	}
	c.writeJSON(w, http.StatusOK, newPage(payouts, limit))
}

func (c *Controller) HandleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := c.App.Store.GetAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		c.storeError(w, "account", err)
		return
	}
	c.writeJSON(w, http.StatusOK, account)
}

// HandleHistory lists an address's history rows, newest block first.
func (c *Controller) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		c.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := c.App.Store.ListHistory(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		c.storeError(w, "history", err)
		return
	}
	c.writeJSON(w, http.StatusOK, newPage(rows, limit))
}
