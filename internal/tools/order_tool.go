package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"voicecart/internal/domain"
	"voicecart/internal/order"
	"voicecart/internal/tooling"
)

// OrderInput is the argument payload for the update_order tool. Quantity
// defaults to 1 when the model omits it.
type OrderInput struct {
	Action   string  `json:"action" jsonschema:"enum=add,enum=remove" jsonschema_description:"Whether to add the item to the order or remove it"`
	ItemName string  `json:"item_name" jsonschema_description:"Name of the menu item"`
	Size     string  `json:"size" jsonschema_description:"Size of the item, e.g. small, large, pot"`
	Quantity int     `json:"quantity,omitempty" jsonschema:"minimum=1" jsonschema_description:"Number of units, defaults to 1"`
	Price    float64 `json:"price,omitempty" jsonschema:"minimum=0" jsonschema_description:"Unit price of the item"`
}

// orderOutput echoes the applied mutation plus the fresh summary so the
// client UI can mirror the ledger without a round-trip.
type orderOutput struct {
	Action   string              `json:"action"`
	ItemName string              `json:"item_name"`
	Size     string              `json:"size"`
	Quantity int                 `json:"quantity"`
	Price    float64             `json:"price"`
	Order    domain.OrderSummary `json:"order"`
}

// OrderTool mutates the shared order ledger. The result goes straight to the
// client (TO_CLIENT).
type OrderTool struct {
	ledger *order.Ledger
}

// NewOrderTool returns the cart mutation tool backed by the given ledger.
func NewOrderTool(ledger *order.Ledger) *OrderTool {
	return &OrderTool{ledger: ledger}
}

func (t *OrderTool) Name() string { return "update_order" }

func (t *OrderTool) Description() string {
	return "Add an item to the customer's order or remove one. Use the exact item name and price from the " +
		"knowledge base. Items of the same name and size are merged into a single line."
}

func (t *OrderTool) Parameters() json.RawMessage {
	return tooling.GenerateSchema(OrderInput{})
}

func (t *OrderTool) Call(ctx context.Context, args json.RawMessage) (*domain.ToolResult, error) {
	var in OrderInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("update_order arguments: %w", err)
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	summary, err := t.ledger.ApplyUpdate(order.Action(in.Action), in.ItemName, in.Size, in.Quantity, in.Price)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(orderOutput{
		Action:   in.Action,
		ItemName: in.ItemName,
		Size:     in.Size,
		Quantity: in.Quantity,
		Price:    in.Price,
		Order:    summary,
	})
	if err != nil {
		return nil, fmt.Errorf("update_order marshal: %w", err)
	}
	return &domain.ToolResult{Output: string(payload), Direction: domain.ToClient}, nil
}

var _ tooling.Tool = (*OrderTool)(nil)
