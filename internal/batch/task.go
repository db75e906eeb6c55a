// Package batch prices many baskets asynchronously. Submissions become asynq
// tasks and the worker writes per-transaction outcomes to Redis.
package batch

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// TypeQuoteBatch is the asynq task type for batch pricing.
	TypeQuoteBatch = "checkout:quote_batch"
	// Queue is the asynq queue batch tasks are placed on.
	Queue = "checkout"
)

// Transaction is one basket inside a batch.
type Transaction struct {
	Reference   string   `json:"reference,omitempty" validate:"omitempty,max=128"`
	Items       []string `json:"items" validate:"max=10000,dive,required,max=64"`
	SaveReceipt bool     `json:"saveReceipt,omitempty"`
}

// Request is the body accepted by Submit.
type Request struct {
	Transactions []Transaction `json:"transactions" validate:"required,min=1,max=1000,dive"`
}

type payload struct {
	BatchID      string        `json:"batchId"`
	Transactions []Transaction `json:"transactions"`
}

// NewQuoteBatchTask encodes a batch into an asynq task.
func NewQuoteBatchTask(id string, txs []Transaction) (*asynq.Task, error) {
	data, err := json.Marshal(payload{BatchID: id, Transactions: txs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeQuoteBatch, data), nil
}
