package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mohitjoer/customer-support-voice-agent/internal/models"
)

// handler runs an action against an order that has already been resolved
// and, for sensitive actions, verified.
type handler func(ctx context.Context, g *Gateway, order *models.Order, inv Invocation) Outcome

var handlers = map[Action]handler{
	ActionCheckOrderStatus:    checkOrderStatus,
	ActionTrackShipment:       trackShipment,
	ActionCheckPaymentStatus:  checkPaymentStatus,
	ActionGetInvoice:          getInvoice,
	ActionCheckRefundStatus:   checkRefundStatus,
	ActionCancelOrder:         cancelOrder,
	ActionModifyOrder:         modifyOrder,
	ActionRescheduleDelivery:  rescheduleDelivery,
	ActionInitiateRefund:      initiateRefund,
	ActionChangePaymentMethod: changePaymentMethod,
}

func checkOrderStatus(_ context.Context, _ *Gateway, order *models.Order, _ Invocation) Outcome {
	return success(map[string]interface{}{
		"order_id": order.OrderID,
		"status":   order.Status,
		"items":    order.Items,
	})
}

func trackShipment(_ context.Context, _ *Gateway, order *models.Order, _ Invocation) Outcome {
	return success(map[string]interface{}{
		"order_id": order.OrderID,
		"shipment": order.Shipment,
	})
}

func checkPaymentStatus(_ context.Context, _ *Gateway, order *models.Order, _ Invocation) Outcome {
	return success(map[string]interface{}{
		"order_id": order.OrderID,
		"payment":  order.Payment,
	})
}

func getInvoice(_ context.Context, _ *Gateway, order *models.Order, _ Invocation) Outcome {
	return success(map[string]interface{}{
		"order_id": order.OrderID,
		"invoice":  order.Invoice,
	})
}

func checkRefundStatus(_ context.Context, _ *Gateway, order *models.Order, _ Invocation) Outcome {
	return success(map[string]interface{}{
		"order_id": order.OrderID,
		"refund":   order.Refund,
	})
}

func cancelOrder(ctx context.Context, g *Gateway, order *models.Order, _ Invocation) Outcome {
	if out, ok := g.update(ctx, order.OrderID, func(o *models.Order) error {
		o.Status = models.OrderStatusCancelled
		return nil
	}); !ok {
		return out
	}

	return success(map[string]interface{}{
		"order_id": order.OrderID,
		"status":   models.OrderStatusCancelled,
	})
}

func modifyOrder(ctx context.Context, g *Gateway, order *models.Order, inv Invocation) Outcome {
	updates, err := parseUpdates(inv.Payload)
	if err != nil {
		return failure(OutcomeMalformedInput, fmt.Sprintf("I couldn't understand the requested changes for order %s: %s.", order.OrderID, err))
	}

	// validate against the resolved copy first so malformed updates never reach the store
	if err := applyUpdates(order.Clone(), updates); err != nil {
		return failure(OutcomeMalformedInput, fmt.Sprintf("I couldn't apply those changes to order %s: %s.", order.OrderID, err))
	}

	if out, ok := g.update(ctx, order.OrderID, func(o *models.Order) error {
		return applyUpdates(o, updates)
	}); !ok {
		return out
	}

	return success(map[string]interface{}{
		"order_id":       order.OrderID,
		"updated_fields": updatedFields(updates),
	})
}

func rescheduleDelivery(ctx context.Context, g *Gateway, order *models.Order, inv Invocation) Outcome {
	if strings.TrimSpace(inv.Payload) == "" {
		return failure(OutcomeMalformedInput, fmt.Sprintf("Please tell me the new delivery date for order %s.", order.OrderID))
	}

	date := inv.Payload
	if out, ok := g.update(ctx, order.OrderID, func(o *models.Order) error {
		o.DeliveryDate = date
		return nil
	}); !ok {
		return out
	}

	return success(map[string]interface{}{
		"order_id":      order.OrderID,
		"delivery_date": date,
	})
}

func initiateRefund(ctx context.Context, g *Gateway, order *models.Order, _ Invocation) Outcome {
	var amount float64
	if out, ok := g.update(ctx, order.OrderID, func(o *models.Order) error {
		amount = o.Payment.Amount
		o.Refund = models.Refund{
			Status: models.RefundStatusInitiated,
			Amount: amount,
		}
		return nil
	}); !ok {
		return out
	}

	return success(map[string]interface{}{
		"order_id":      order.OrderID,
		"refund_status": models.RefundStatusInitiated,
		"refund_amount": amount,
	})
}

func changePaymentMethod(ctx context.Context, g *Gateway, order *models.Order, inv Invocation) Outcome {
	if strings.TrimSpace(inv.Payload) == "" {
		return failure(OutcomeMalformedInput, fmt.Sprintf("Please tell me the new payment method for order %s.", order.OrderID))
	}

	method := inv.Payload
	if out, ok := g.update(ctx, order.OrderID, func(o *models.Order) error {
		o.Payment.Method = method
		return nil
	}); !ok {
		return out
	}

	return success(map[string]interface{}{
		"order_id":       order.OrderID,
		"payment_method": method,
	})
}

// parseUpdates decodes a modify payload into top-level field updates
func parseUpdates(payload string) (map[string]json.RawMessage, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, malformed("no changes were provided")
	}

	var updates map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &updates); err != nil {
		return nil, malformed("the changes are not a valid set of field updates")
	}
	if len(updates) == 0 {
		return nil, malformed("no changes were provided")
	}
	if _, ok := updates["order_id"]; ok {
		return nil, malformed("the order ID cannot be changed")
	}
	return updates, nil
}

// applyUpdates merges updates into order as one unit: order is only
// replaced when every field decodes into the order schema. Nested objects
// are merged key by key, any other value replaces the field.
func applyUpdates(order *models.Order, updates map[string]json.RawMessage) error {
	doc, err := json.Marshal(order)
	if err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return err
	}
	if err := mergeFields("", fields, updates); err != nil {
		return err
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.DisallowUnknownFields()

	var next models.Order
	if err := dec.Decode(&next); err != nil {
		return malformed("%s", describeDecodeError(err))
	}

	if _, ok := updates["status"]; ok && !models.ValidOrderStatus(next.Status) {
		return malformed("%q is not a valid order status", next.Status)
	}
	// an order without an owner email could never be verified again
	if _, ok := updates["email"]; ok && strings.TrimSpace(next.Email) == "" {
		return malformed("the account email cannot be removed")
	}

	*order = next
	return nil
}

func mergeFields(prefix string, base, patch map[string]json.RawMessage) error {
	for name, value := range patch {
		path := prefix + name
		existing, ok := base[name]
		// decoding matches names case-insensitively, so only exact names are accepted
		if !ok {
			return malformed("%s is not an order field", path)
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return malformed("%s cannot be cleared", path)
		}

		baseObj, patchObj := asObject(existing), asObject(value)
		if baseObj == nil || patchObj == nil {
			base[name] = value
			continue
		}

		if err := mergeFields(path+".", baseObj, patchObj); err != nil {
			return err
		}
		raw, err := json.Marshal(baseObj)
		if err != nil {
			return err
		}
		base[name] = raw
	}
	return nil
}

func asObject(raw json.RawMessage) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field %s has the wrong type", typeErr.Field)
	}
	return "the changes do not match the order format"
}

func updatedFields(updates map[string]json.RawMessage) []string {
	names := make([]string, 0, len(updates))
	for name := range updates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
