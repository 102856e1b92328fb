package gateway

import "fmt"

// Action names a support operation the speech pipeline may request
type Action string

// Supported actions
const (
	ActionCheckOrderStatus    Action = "check_order_status"
	ActionTrackShipment       Action = "track_shipment"
	ActionCheckPaymentStatus  Action = "check_payment_status"
	ActionGetInvoice          Action = "get_invoice"
	ActionCheckRefundStatus   Action = "check_refund_status"
	ActionCancelOrder         Action = "cancel_order"
	ActionModifyOrder         Action = "modify_order"
	ActionRescheduleDelivery  Action = "reschedule_delivery"
	ActionInitiateRefund      Action = "initiate_refund"
	ActionChangePaymentMethod Action = "change_payment_method"

	// ActionEndCall is terminal and not order scoped
	ActionEndCall Action = "end_call"
)

// Class partitions actions by the authorization they require
type Class int

const (
	ClassReadOnly Class = iota
	ClassSensitive
	ClassTerminal
)

func (c Class) String() string {
	switch c {
	case ClassReadOnly:
		return "read_only"
	case ClassSensitive:
		return "sensitive"
	case ClassTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

var classes = map[Action]Class{
	ActionCheckOrderStatus:    ClassReadOnly,
	ActionTrackShipment:       ClassReadOnly,
	ActionCheckPaymentStatus:  ClassReadOnly,
	ActionGetInvoice:          ClassReadOnly,
	ActionCheckRefundStatus:   ClassReadOnly,
	ActionCancelOrder:         ClassSensitive,
	ActionModifyOrder:         ClassSensitive,
	ActionRescheduleDelivery:  ClassSensitive,
	ActionInitiateRefund:      ClassSensitive,
	ActionChangePaymentMethod: ClassSensitive,
	ActionEndCall:             ClassTerminal,
}

// Class reports the classification of the action
func (a Action) Class() Class {
	if c, ok := classes[a]; ok {
		return c
	}
	return -1
}

// Valid reports whether the action is part of the catalog
func (a Action) Valid() bool {
	_, ok := classes[a]
	return ok
}

// ParseAction validates an action name
func ParseAction(name string) (Action, error) {
	a := Action(name)
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q", name)
	}
	return a, nil
}

// orderActions returns every order scoped action
func orderActions() []Action {
	return []Action{
		ActionCheckOrderStatus,
		ActionTrackShipment,
		ActionCheckPaymentStatus,
		ActionGetInvoice,
		ActionCheckRefundStatus,
		ActionCancelOrder,
		ActionModifyOrder,
		ActionRescheduleDelivery,
		ActionInitiateRefund,
		ActionChangePaymentMethod,
	}
}

// denialVerbs phrase the verification denial for each sensitive action
var denialVerbs = map[Action]string{
	ActionCancelOrder:         "cancel this order",
	ActionModifyOrder:         "modify this order",
	ActionRescheduleDelivery:  "reschedule this delivery",
	ActionInitiateRefund:      "initiate a refund for this order",
	ActionChangePaymentMethod: "change the payment method for this order",
}
