package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/auction/instant"
	"github.com/openclear/auctiond/internal/core/auction/uniformprice"
	"github.com/openclear/auctiond/internal/core/fees"
	"github.com/openclear/auctiond/internal/core/house"
	"github.com/openclear/auctiond/internal/core/token"
)

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcResponse struct {
	RequestID string    `json:"request_id"`
	Result    any       `json:"result,omitempty"`
	Error     *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"lot_ids": s.engine.LotIDs()})
}

func (s *Server) handleLot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid lot id"})
		return
	}

	if cached, ok := s.viewCache.Get(id); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	snap, err := s.engine.LotView(id)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}

	body, err := json.Marshal(snap)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode failed"})
		return
	}
	s.viewCache.Add(id, body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	lotID, err1 := strconv.ParseUint(r.PathValue("id"), 10, 64)
	bidID, err2 := strconv.ParseUint(r.PathValue("bid"), 10, 64)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	snap, err := s.engine.BidView(lotID, bidID)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	recipient := token.Address(r.PathValue("recipient"))
	tkn := token.Token(r.PathValue("token"))
	writeJSON(w, http.StatusOK, map[string]string{
		"recipient": string(recipient),
		"token":     string(tkn),
		"balance":   s.engine.RewardsBalance(recipient, tkn),
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	log := s.log.WithField("request_id", requestID)

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, rpcResponse{
			RequestID: requestID,
			Error:     &rpcError{Kind: "bad_request", Message: "malformed request body"},
		})
		return
	}

	result, err := s.dispatch(r, req)
	if err != nil {
		log.WithField("method", req.Method).WithError(err).Warn("rpc call failed")
		writeJSON(w, statusFor(err), rpcResponse{
			RequestID: requestID,
			Error:     &rpcError{Kind: kindString(err), Message: err.Error()},
		})
		return
	}

	log.WithField("method", req.Method).Debug("rpc call ok")
	writeJSON(w, http.StatusOK, rpcResponse{RequestID: requestID, Result: result})
}

func (s *Server) dispatch(r *http.Request, req rpcRequest) (any, error) {
	ctx := r.Context()

	switch req.Method {
	case "create_lot":
		return s.rpcCreateLot(ctx, req.Params)
	case "cancel_lot":
		var p struct {
			Caller string `json:"caller"`
			LotID  uint64 `json:"lot_id"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return okResult{}, s.engine.CancelLot(ctx, token.Address(p.Caller), p.LotID)

	case "place_bid":
		var p struct {
			Bidder string `json:"bidder"`
			LotID  uint64 `json:"lot_id"`
			Amount string `json:"amount"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		amt, err := parseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		bidID, err := s.engine.PlaceBid(ctx, token.Address(p.Bidder), p.LotID, amt)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"bid_id": bidID}, nil

	case "refund_bid":
		var p struct {
			Caller string `json:"caller"`
			LotID  uint64 `json:"lot_id"`
			BidID  uint64 `json:"bid_id"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return okResult{}, s.engine.RefundBid(ctx, token.Address(p.Caller), p.LotID, p.BidID)

	case "curate":
		var p struct {
			Caller string `json:"caller"`
			LotID  uint64 `json:"lot_id"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return okResult{}, s.engine.Curate(ctx, token.Address(p.Caller), p.LotID)

	case "set_fee":
		return s.rpcSetFee(req.Params)

	case "set_curator_fee":
		var p struct {
			Caller      string `json:"caller"`
			AuctionType string `json:"auction_type"`
			Percent     uint32 `json:"percent"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		err := s.engine.Curation().SetCuratorFee(token.Address(p.Caller), auction.Keycode(p.AuctionType), p.Percent)
		return okResult{}, err

	case "settle":
		var p struct {
			LotID uint64 `json:"lot_id"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		rec, err := s.engine.Settle(ctx, p.LotID)
		if err != nil {
			return nil, err
		}
		return settleResult(rec), nil

	case "purchase":
		var p struct {
			Buyer  string `json:"buyer"`
			LotID  uint64 `json:"lot_id"`
			Amount string `json:"amount"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		amt, err := parseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		rec, err := s.engine.Purchase(ctx, token.Address(p.Buyer), p.LotID, amt)
		if err != nil {
			return nil, err
		}
		return purchaseResult(rec), nil

	case "claim_proceeds":
		var p struct {
			Caller string `json:"caller"`
			LotID  uint64 `json:"lot_id"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		claimed, err := s.engine.ClaimProceeds(ctx, token.Address(p.Caller), p.LotID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"claimed": claimed.String()}, nil

	case "claim_bids":
		var p struct {
			Caller string   `json:"caller"`
			LotID  uint64   `json:"lot_id"`
			BidIDs []uint64 `json:"bid_ids"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		outcomes, err := s.engine.ClaimBids(ctx, token.Address(p.Caller), p.LotID, p.BidIDs)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(outcomes))
		for _, o := range outcomes {
			out = append(out, map[string]any{
				"bid_id": o.BidID,
				"filled": o.Filled,
				"amount": o.Amount.String(),
			})
		}
		return map[string]any{"outcomes": out}, nil

	case "claim_rewards":
		var p struct {
			Caller string `json:"caller"`
			Token  string `json:"token"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		claimed, err := s.engine.ClaimRewards(ctx, token.Address(p.Caller), token.Token(p.Token))
		if err != nil {
			return nil, err
		}
		return map[string]string{"claimed": claimed.String()}, nil

	default:
		return nil, aucterr.New(aucterr.KindInvalidParams, "rpc", "unknown method %q", req.Method)
	}
}

type createLotParams struct {
	Seller        string `json:"seller"`
	Referrer      string `json:"referrer"`
	Curator       string `json:"curator"`
	BaseToken     string `json:"base_token"`
	QuoteToken    string `json:"quote_token"`
	BaseDecimals  uint8  `json:"base_decimals"`
	QuoteDecimals uint8  `json:"quote_decimals"`
	AuctionType   string `json:"auction_type"`
	Capacity      string `json:"capacity"`
	Start         string `json:"start"`
	Conclusion    string `json:"conclusion"`
	Prefund       bool   `json:"prefund"`
	Price         uint64 `json:"price"`
	MinRaise      string `json:"min_raise"`
}

func (s *Server) rpcCreateLot(ctx context.Context, raw json.RawMessage) (any, error) {
	var p createLotParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}

	capacity, err := parseAmount(p.Capacity)
	if err != nil {
		return nil, err
	}

	var start, conclusion time.Time
	if p.Start != "" {
		if start, err = time.Parse(time.RFC3339, p.Start); err != nil {
			return nil, aucterr.New(aucterr.KindInvalidParams, "rpc", "invalid start time: %v", err)
		}
	}
	if conclusion, err = time.Parse(time.RFC3339, p.Conclusion); err != nil {
		return nil, aucterr.New(aucterr.KindInvalidParams, "rpc", "invalid conclusion time: %v", err)
	}

	moduleParams, err := moduleParamsFor(auction.Keycode(p.AuctionType), p)
	if err != nil {
		return nil, err
	}

	lotID, err := s.engine.CreateLot(ctx, house.CreateParams{
		Seller:        token.Address(p.Seller),
		Referrer:      token.Address(p.Referrer),
		Curator:       token.Address(p.Curator),
		BaseToken:     token.Token(p.BaseToken),
		QuoteToken:    token.Token(p.QuoteToken),
		BaseDecimals:  p.BaseDecimals,
		QuoteDecimals: p.QuoteDecimals,
		Keycode:       auction.Keycode(p.AuctionType),
		Capacity:      capacity,
		Start:         start,
		Conclusion:    conclusion,
		Prefund:       p.Prefund,
		ModuleParams:  moduleParams,
	})
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"lot_id": lotID}, nil
}

func moduleParamsFor(kc auction.Keycode, p createLotParams) (any, error) {
	switch kc {
	case uniformprice.KeycodeUP:
		minRaise := amount.Zero
		if p.MinRaise != "" {
			var err error
			if minRaise, err = parseAmount(p.MinRaise); err != nil {
				return nil, err
			}
		}
		return uniformprice.Params{Price: p.Price, MinRaise: minRaise}, nil
	case instant.KeycodeIN:
		return instant.Params{Price: p.Price}, nil
	default:
		return nil, aucterr.New(aucterr.KindInvalidParams, "rpc", "unknown auction type %q", kc)
	}
}

func (s *Server) rpcSetFee(raw json.RawMessage) (any, error) {
	var p struct {
		Caller      string `json:"caller"`
		AuctionType string `json:"auction_type"`
		FeeType     string `json:"fee_type"`
		Percent     uint32 `json:"percent"`
	}
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}

	var ft fees.FeeType
	switch p.FeeType {
	case "protocol":
		ft = fees.Protocol
	case "referrer":
		ft = fees.Referrer
	case "max_curator":
		ft = fees.MaxCurator
	default:
		return nil, aucterr.New(aucterr.KindInvalidParams, "rpc", "unknown fee type %q", p.FeeType)
	}

	err := s.engine.Fees().SetFee(token.Address(p.Caller), auction.Keycode(p.AuctionType), ft, p.Percent)
	return okResult{}, err
}

type okResult struct{}

func (okResult) MarshalJSON() ([]byte, error) { return []byte(`{"ok":true}`), nil }

func settleResult(rec *house.SettleReceipt) map[string]any {
	out := map[string]any{
		"lot_id":       rec.LotID,
		"settled":      rec.Settled,
		"total_in":     rec.TotalIn.String(),
		"total_out":    rec.TotalOut.String(),
		"protocol_fee": rec.ProtocolFee.String(),
		"referrer_fee": rec.ReferrerFee.String(),
		"curator_fee":  rec.CuratorFee.String(),
		"seller_net":   rec.SellerNet.String(),
	}
	if rec.PartialFill != nil {
		out["partial_fill"] = map[string]any{
			"bidder": string(rec.PartialFill.Bidder),
			"refund": rec.PartialFill.Refund.String(),
			"payout": rec.PartialFill.Payout.String(),
		}
	}
	return out
}

func purchaseResult(rec *house.PurchaseReceipt) map[string]any {
	return map[string]any{
		"lot_id":       rec.LotID,
		"paid":         rec.Paid.String(),
		"payout":       rec.Payout.String(),
		"protocol_fee": rec.ProtocolFee.String(),
		"referrer_fee": rec.ReferrerFee.String(),
		"curator_fee":  rec.CuratorFee.String(),
		"seller_net":   rec.SellerNet.String(),
	}
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return aucterr.New(aucterr.KindInvalidParams, "rpc", "missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return aucterr.New(aucterr.KindInvalidParams, "rpc", "malformed params: %v", err)
	}
	return nil
}

func parseAmount(s string) (amount.Amount, error) {
	a, err := amount.Parse(s)
	if err != nil {
		return amount.Zero, aucterr.New(aucterr.KindInvalidParams, "rpc", "invalid amount %q", s)
	}
	return a, nil
}

func statusFor(err error) int {
	switch aucterr.KindOf(err) {
	case aucterr.KindInvalidLotID, aucterr.KindInvalidBidID:
		return http.StatusNotFound
	case aucterr.KindNotPermitted, aucterr.KindNotBidder:
		return http.StatusForbidden
	case aucterr.KindInvalidState:
		return http.StatusConflict
	case aucterr.KindInvalidParams, aucterr.KindInvalidFee, aucterr.KindOverflow:
		return http.StatusBadRequest
	case aucterr.KindNotImplemented:
		return http.StatusNotImplemented
	case aucterr.KindInsufficientFunding:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func kindString(err error) string {
	var e *aucterr.Error
	if errors.As(err, &e) {
		return e.Kind.String()
	}
	return "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}
