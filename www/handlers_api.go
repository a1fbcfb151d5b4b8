package www

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ffcentral/engine"
	"ffcentral/orders"
	"ffcentral/pairing"
	"ffcentral/protocol"
)

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.Health())
}

type orderLists struct {
	Active    []*orders.Order `json:"active"`
	Completed []*orders.Order `json:"completed"`
}

func (h *Handlers) apiListOrders(w http.ResponseWriter, r *http.Request) {
	active, completed := h.engine.OrderLists()
	h.jsonOK(w, orderLists{Active: active, Completed: completed})
}

func (h *Handlers) apiOrderHistory(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.DB().ListRecentOrders(queryLimit(r, 50))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, list)
}

// apiGetOrder answers from memory first and falls back to the database for
// orders that have aged out of the completed list.
func (h *Handlers) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderID")
	if o := h.engine.Order(id); o != nil {
		h.jsonOK(w, o)
		return
	}
	o, err := h.engine.DB().GetOrder(id)
	if errors.Is(err, sql.ErrNoRows) {
		h.jsonError(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, o)
}

func (h *Handlers) apiOrderAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.DB().ListAuditFor("order", chi.URLParam(r, "orderID"))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, entries)
}

func (h *Handlers) apiListFts(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.NodeState().Fts())
}

func (h *Handlers) apiListModules(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.NodeState().Modules())
}

func (h *Handlers) apiListBlocks(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.NodeState().Blocks())
}

func (h *Handlers) apiListBays(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.NodeState().Bays())
}

func (h *Handlers) apiListStock(w http.ResponseWriter, r *http.Request) {
	stock, err := h.engine.DB().ListStock()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, stock)
}

func (h *Handlers) apiChargingStatus(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.ChargingStatus())
}

func (h *Handlers) apiAuditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.DB().ListAuditLog(queryLimit(r, 100))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, entries)
}

func (h *Handlers) apiRequestOrder(w http.ResponseWriter, r *http.Request) {
	var req protocol.OrderRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	o, err := h.engine.RequestOrder(orders.OrderType(req.OrderType), req.Type, req.WorkpieceID)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, o)
}

func (h *Handlers) apiCancelOrders(w http.ResponseWriter, r *http.Request) {
	var req protocol.OrderCancel
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if len(req.OrderIDs) == 0 {
		h.jsonError(w, "orderIds is required", http.StatusBadRequest)
		return
	}
	if err := h.engine.CancelOrders(req.OrderIDs); err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, map[string]int{"cancelled": len(req.OrderIDs)})
}

func (h *Handlers) apiFactoryReset(w http.ResponseWriter, r *http.Request) {
	var req protocol.ResetRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.FactoryReset(req.WithStorage, h.getUsername(r)); err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, map[string]bool{"reset": true})
}

func (h *Handlers) apiCharge(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChargeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.Charge(chi.URLParam(r, "serial"), req.Charge); err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, map[string]bool{"charge": req.Charge})
}

func (h *Handlers) apiPairFts(w http.ResponseWriter, r *http.Request) {
	var req protocol.PairFts
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.ModuleSerialNumber == "" {
		h.jsonError(w, "moduleSerialNumber is required", http.StatusBadRequest)
		return
	}
	if err := h.engine.PairFts(chi.URLParam(r, "serial"), req.ModuleSerialNumber, req.NodeID); err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, map[string]bool{"paired": true})
}

func (h *Handlers) apiApplyLayout(w http.ResponseWriter, r *http.Request) {
	var layout protocol.Layout
	if !h.decodeJSON(w, r, &layout) {
		return
	}
	if err := h.engine.ApplyLayout(&layout); err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, map[string]int{"nodes": len(layout.Nodes), "edges": len(layout.Edges)})
}

type stockRequest struct {
	WorkpieceType string `json:"workpieceType"`
	WorkpieceID   string `json:"workpieceId"`
}

func (h *Handlers) apiSetStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	location := chi.URLParam(r, "location")
	if err := h.engine.DB().SetStock(location, req.WorkpieceType, req.WorkpieceID); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.jsonOK(w, map[string]string{"location": location})
}

func (h *Handlers) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrStopped):
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, pairing.ErrUnknownDevice):
		h.jsonError(w, err.Error(), http.StatusNotFound)
	default:
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	}
}
