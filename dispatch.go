package orderrt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/codewandler/orderrt-go/store"
)

const (
	// ReadyForCheckout opens checkout only on a successful, ready result that
	// also asks for it.
	ReadyForCheckout = "ready_for_checkout"

	argSessionID = "session_id"
	argProductID = "product_id"
)

// prepareArguments copies args and sets the active session id, overriding
// whatever the model supplied.
func prepareArguments(args map[string]any, sessionID string) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out[argSessionID] = sessionID
	return out
}

func productID(args map[string]any) (string, bool) {
	switch v := args[argProductID].(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	}
	return "", false
}

func errorPayload(err error) json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"success": false,
		"error":   err.Error(),
	})
	return data
}

// dispatch runs on the loop. The backend round-trip happens off the loop and
// completion is posted back, so overlapping calls may complete in any order.
func (b *Bridge) dispatch(call FunctionCallRequested) {
	attempt := b.attempt
	logger := b.logger.With(slog.String("call_id", call.CallID), slog.String("function", call.Name))

	if call.Err != nil {
		logger.Warn("function call arguments invalid", slog.Any("err", call.Err))
		b.complete(attempt, call, nil, call.Err)
		return
	}

	args := prepareArguments(call.Arguments, b.store.Store().Snapshot().SessionID)
	if id, ok := productID(args); ok {
		b.store.FocusProduct(id)
	}

	b.metrics.count(b.metrics.functionCalls, "function", call.Name)
	logger.Debug("function call", slog.Any("args", args))

	go func() {
		res, err := b.backend.InvokeFunction(context.Background(), call.Name, args)
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrBackendInvocation, call.Name, err)
		}
		if !b.loop.post(func() { b.complete(attempt, call, res, err) }) {
			logger.Warn("function result lost, bridge closed")
		}
	}()
}

// complete applies a result to the store and reports it to the model. The
// store is updated even when the connection the call came from is gone.
func (b *Bridge) complete(attempt int, call FunctionCallRequested, res json.RawMessage, err error) {
	logger := b.logger.With(slog.String("call_id", call.CallID), slog.String("function", call.Name))

	payload := res
	if err != nil {
		if errors.Is(err, ErrBackendInvocation) {
			b.metrics.count(b.metrics.backendErrors, "function", call.Name)
		}
		logger.Error("function call failed", slog.Any("err", err))
		payload = errorPayload(err)
	} else {
		if len(payload) == 0 || string(payload) == "null" {
			payload = json.RawMessage(`{"success":true}`)
		}
		b.apply(call.Name, payload, logger)
	}

	tr := b.tr
	if attempt != b.attempt {
		tr = nil
	}
	if err := submitFunctionResult(tr, call.CallID, payload); err != nil {
		b.metrics.count(b.metrics.resultsDropped, "function", call.Name)
		logger.Warn("function result dropped", slog.Any("err", err))
	}
}

// apply decodes each recognized field on its own, so a malformed field does
// not discard the others. Everything else is passed to the model untouched.
func (b *Bridge) apply(name string, payload json.RawMessage, logger *slog.Logger) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		logger.Debug("function result not applied", slog.Any("err", err))
		return
	}

	var items []store.CartItem
	if resultField(fields, "items", &items, logger) {
		b.store.ReplaceItems(items)
	}
	var customer store.Customer
	if resultField(fields, "customer", &customer, logger) {
		b.store.PatchCustomer(customer)
	}

	var open, success, ready bool
	resultField(fields, "open_checkout", &open, logger)
	if name == ReadyForCheckout {
		resultField(fields, "success", &success, logger)
		resultField(fields, "ready", &ready, logger)
		open = open && success && ready
	}
	if open {
		b.store.OpenCheckout()
	}
}

// resultField decodes fields[key] into v. It reports false when the field is
// absent, null or malformed.
func resultField(fields map[string]json.RawMessage, key string, v any, logger *slog.Logger) bool {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		logger.Warn("function result field ignored", slog.String("field", key), slog.Any("err", err))
		return false
	}
	return true
}
