package models

// OrderStatus is the lifecycle state of an order
type OrderStatus int

const (
	OrderStatusCreated OrderStatus = iota
	OrderStatusPaid
	OrderStatusSend
	OrderStatusDone
	OrderStatusCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusCreated:
		return "created"
	case OrderStatusPaid:
		return "paid"
	case OrderStatusSend:
		return "send"
	case OrderStatusDone:
		return "done"
	case OrderStatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// CanBecomePaid reports whether a finished payment may move the order to Paid.
// Only Created and Canceled (a refund attempt the buyer paid through) qualify.
func (s OrderStatus) CanBecomePaid() bool {
	return s == OrderStatusCreated || s == OrderStatusCanceled
}

// TransactionStatus is the state of a payment transaction
type TransactionStatus int

const (
	TransactionStatusCreated TransactionStatus = iota
	TransactionStatusCanceled
	TransactionStatusFinished
)

func (s TransactionStatus) String() string {
	switch s {
	case TransactionStatusCreated:
		return "created"
	case TransactionStatusCanceled:
		return "canceled"
	case TransactionStatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// EventType is the kind of a journal entry, numbered as the marketplace numbers them
type EventType int

const (
	EventDealCreated         EventType = 1
	EventTransactionCreated  EventType = 2
	EventTransactionCanceled EventType = 3
	EventTransactionFinished EventType = 4
)

func (t EventType) String() string {
	switch t {
	case EventDealCreated:
		return "deal_created"
	case EventTransactionCreated:
		return "transaction_created"
	case EventTransactionCanceled:
		return "transaction_canceled"
	case EventTransactionFinished:
		return "transaction_finished"
	default:
		return "unknown"
	}
}

// JobState is the persisted state of a periodic processor
type JobState string

const (
	JobStatePending JobState = "pending"
	JobStateRunning JobState = "running"
	JobStateIdle    JobState = "idle"
	JobStateFailed  JobState = "failed"
)

// Active reports whether the job is armed or executing
func (s JobState) Active() bool {
	return s == JobStatePending || s == JobStateRunning
}
