package domain

import (
	"encoding/json"
	"fmt"
)

// Action names the wire form of a decision.
type Action string

const (
	ActionReconcile Action = "reconcile"
	ActionImport    Action = "import"
	ActionIgnore    Action = "ignore"
)

// Decision is a human-confirmed verdict for one item. The concrete types are
// ReconcileDecision, ImportDecision and IgnoreDecision.
type Decision interface {
	ItemID() string
	Action() Action
}

// ReconcileDecision links the item to a ledger transaction. A nil target
// falls back to the item's suggested match.
type ReconcileDecision struct {
	Item                string
	TargetTransactionID *string
}

func (d ReconcileDecision) ItemID() string { return d.Item }
func (d ReconcileDecision) Action() Action { return ActionReconcile }

// ImportDecision creates a new ledger transaction from the item. A nil
// category falls back to the item's suggested category.
type ImportDecision struct {
	Item       string
	CategoryID *string
}

func (d ImportDecision) ItemID() string { return d.Item }
func (d ImportDecision) Action() Action { return ActionImport }

// IgnoreDecision marks the item ignored.
type IgnoreDecision struct {
	Item string
}

func (d IgnoreDecision) ItemID() string { return d.Item }
func (d IgnoreDecision) Action() Action { return ActionIgnore }

// DecisionPayload is the JSON shape of a decision.
type DecisionPayload struct {
	ItemID        string  `json:"item_id"`
	Action        Action  `json:"action"`
	TransactionID *string `json:"transaction_id,omitempty"`
	CategoryID    *string `json:"category_id,omitempty"`
}

// Decision converts the payload into its typed variant.
func (p DecisionPayload) Decision() (Decision, error) {
	if p.ItemID == "" {
		return nil, fmt.Errorf("decision: item_id is required")
	}
	switch p.Action {
	case ActionReconcile:
		return ReconcileDecision{Item: p.ItemID, TargetTransactionID: nonEmpty(p.TransactionID)}, nil
	case ActionImport:
		return ImportDecision{Item: p.ItemID, CategoryID: nonEmpty(p.CategoryID)}, nil
	case ActionIgnore:
		return IgnoreDecision{Item: p.ItemID}, nil
	default:
		return nil, fmt.Errorf("decision: unknown action %q for item %s", p.Action, p.ItemID)
	}
}

// DecodeDecisions parses a JSON array of decision payloads.
func DecodeDecisions(data []byte) ([]Decision, error) {
	var payloads []DecisionPayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("DecodeDecisions: %w", err)
	}
	return PayloadsToDecisions(payloads)
}

// PayloadsToDecisions converts payloads, failing on the first invalid one.
func PayloadsToDecisions(payloads []DecisionPayload) ([]Decision, error) {
	decisions := make([]Decision, 0, len(payloads))
	for _, p := range payloads {
		d, err := p.Decision()
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
