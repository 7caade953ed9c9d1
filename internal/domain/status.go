package domain

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusFulfilled  OrderStatus = "fulfilled"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusFulfilled, OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusFulfilled:  {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

// Known reports whether the status belongs to the lifecycle vocabulary.
func (s OrderStatus) Known() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Terminal reports whether the status has no outgoing transitions.
func (s OrderStatus) Terminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether the lifecycle graph permits moving to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Editable reports whether line items may still be added or changed.
func (s OrderStatus) Editable() bool {
	return s == OrderStatusPending || s == OrderStatusProcessing
}

// PostPayment reports whether the order has reached a paid state, which is the
// precondition for refund-driven transitions.
func (s OrderStatus) PostPayment() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusFulfilled, OrderStatusCompleted:
		return true
	}
	return false
}

// CancellationStatus enumerates the cancellation workflow states.
type CancellationStatus string

const (
	CancellationPending   CancellationStatus = "pending"
	CancellationApproved  CancellationStatus = "approved"
	CancellationDenied    CancellationStatus = "denied"
	CancellationCompleted CancellationStatus = "completed"
)

var cancellationTransitions = map[CancellationStatus][]CancellationStatus{
	CancellationPending:   {CancellationApproved, CancellationDenied},
	CancellationApproved:  {CancellationCompleted},
	CancellationDenied:    {},
	CancellationCompleted: {},
}

// Terminal reports whether the cancellation can no longer change state.
func (s CancellationStatus) Terminal() bool {
	next, ok := cancellationTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether the workflow permits moving to next.
func (s CancellationStatus) CanTransitionTo(next CancellationStatus) bool {
	for _, candidate := range cancellationTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// RefundStatus enumerates the refund workflow states. Terminal states are
// frozen because the refund is bound to a settled payment amount.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundApproved  RefundStatus = "approved"
	RefundDenied    RefundStatus = "denied"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
)

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundPending:   {RefundApproved, RefundDenied},
	RefundApproved:  {RefundCompleted, RefundFailed},
	RefundDenied:    {},
	RefundCompleted: {},
	RefundFailed:    {},
}

// Terminal reports whether the refund can no longer change state.
func (s RefundStatus) Terminal() bool {
	next, ok := refundTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether the workflow permits moving to next.
func (s RefundStatus) CanTransitionTo(next RefundStatus) bool {
	for _, candidate := range refundTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ShipmentStatus enumerates per-shipment fulfillment states.
type ShipmentStatus string

const (
	ShipmentPending        ShipmentStatus = "pending"
	ShipmentShipped        ShipmentStatus = "shipped"
	ShipmentInTransit      ShipmentStatus = "in_transit"
	ShipmentOutForDelivery ShipmentStatus = "out_for_delivery"
	ShipmentDelivered      ShipmentStatus = "delivered"
	ShipmentReturned       ShipmentStatus = "returned"
	ShipmentCancelled      ShipmentStatus = "cancelled"
)

var shipmentTransitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentPending:        {ShipmentShipped, ShipmentCancelled, ShipmentReturned},
	ShipmentShipped:        {ShipmentInTransit, ShipmentOutForDelivery, ShipmentDelivered, ShipmentCancelled, ShipmentReturned},
	ShipmentInTransit:      {ShipmentOutForDelivery, ShipmentDelivered, ShipmentCancelled, ShipmentReturned},
	ShipmentOutForDelivery: {ShipmentDelivered},
	ShipmentDelivered:      {},
	ShipmentReturned:       {},
	ShipmentCancelled:      {},
}

// Known reports whether the status belongs to the shipment vocabulary.
func (s ShipmentStatus) Known() bool {
	_, ok := shipmentTransitions[s]
	return ok
}

// Terminal reports whether the shipment can no longer change state.
func (s ShipmentStatus) Terminal() bool {
	next, ok := shipmentTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether the shipment graph permits moving to next.
func (s ShipmentStatus) CanTransitionTo(next ShipmentStatus) bool {
	for _, candidate := range shipmentTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Moving reports whether the status implies the parcel has left the warehouse
// and therefore requires a tracking number.
func (s ShipmentStatus) Moving() bool {
	switch s {
	case ShipmentShipped, ShipmentInTransit, ShipmentOutForDelivery, ShipmentDelivered:
		return true
	}
	return false
}
