package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/liveshard/internal/api/request"
	"github.com/mcoot/liveshard/internal/api/response"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/services/mtx"
	"github.com/mcoot/liveshard/internal/services/player"
)

// MtxHandler handles receipt and game pass endpoints
type MtxHandler struct {
	players *player.Manager
	mtx     *mtx.Service
}

// NewMtxHandler creates a new transaction handler
func NewMtxHandler(players *player.Manager, transactions *mtx.Service) *MtxHandler {
	return &MtxHandler{players: players, mtx: transactions}
}

// ProcessReceipt handles POST /api/v1/receipts
func (h *MtxHandler) ProcessReceipt(w http.ResponseWriter, r *http.Request) {
	var req request.ReceiptRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	playerID, err := positiveUserID(req.PlayerID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if req.PurchaseID == "" || req.ProductID == "" {
		WriteError(w, NewInvalidRequestError("purchase_id and product_id are required"))
		return
	}

	decision := h.mtx.ProcessReceipt(r.Context(), model.ReceiptInfo{
		PurchaseID:    req.PurchaseID,
		PlayerID:      playerID,
		ProductID:     model.ProductID(req.ProductID),
		CurrencySpent: req.CurrencySpent,
	})
	response.JSON(w, http.StatusOK, response.Decision{Decision: decision})
}

// PurchaseFinished handles POST /api/v1/sessions/{user_id}/gamepasses/{pass_id}/purchase-finished
func (h *MtxHandler) PurchaseFinished(w http.ResponseWriter, r *http.Request) {
	id, err := userIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var req request.PurchaseFinishedRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if !h.players.IsConnected(id) {
		WriteError(w, model.ErrNotConnected)
		return
	}

	pass := model.GamePassID(mux.Vars(r)["pass_id"])
	if err := h.mtx.PromptGamePassPurchaseFinished(r.Context(), id, pass, req.Purchased); err != nil {
		WriteError(w, err)
		return
	}
	response.NoContent(w)
}

// SetActive handles PUT /api/v1/sessions/{user_id}/gamepasses/{pass_id}/active
func (h *MtxHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := userIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var req request.SetActiveRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	e, ok := h.players.GetEntity(id)
	if !ok {
		WriteError(w, model.ErrNotConnected)
		return
	}

	pass := model.GamePassID(mux.Vars(r)["pass_id"])
	if err := h.mtx.SetGamePassActive(r.Context(), e, pass, req.Active); err != nil {
		WriteError(w, err)
		return
	}
	response.NoContent(w)
}
