package model

import (
	"encoding/json"
	"time"
)

// Receipt is the record of one committed instruction.
type Receipt struct {
	InstructionID string
	Kind          OpKind
	Holder        Holder
	Before        PoolState
	After         PoolState
	Legs          []Leg
	Outcome       Outcome
	Requoted      bool
	AppliedAt     time.Time
}

// Sequence is the pool version produced by the commit.
func (r Receipt) Sequence() uint64 {
	return r.After.Version
}

// ReceiptRecord is the normalized JSON representation of a receipt for
// journals and external stores. Amounts are base-10 strings.
type ReceiptRecord struct {
	InstructionID string      `json:"instruction_id"`
	Pool          string      `json:"pool"`
	Kind          string      `json:"kind"`
	Holder        string      `json:"holder"`
	Sequence      uint64      `json:"sequence"`
	Before        PoolView    `json:"before"`
	After         PoolView    `json:"after"`
	Legs          []LegRecord `json:"legs"`
	AmountIn      string      `json:"amount_in,omitempty"`
	AmountOut     string      `json:"amount_out,omitempty"`
	Fee           string      `json:"fee,omitempty"`
	SharesMinted  string      `json:"shares_minted,omitempty"`
	SharesBurned  string      `json:"shares_burned,omitempty"`
	Requoted      bool        `json:"requoted"`
	AppliedAt     string      `json:"applied_at"`
}

// LegRecord is the JSON representation of a leg.
type LegRecord struct {
	Token  string `json:"token"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Record converts the receipt into its JSON record.
func (r Receipt) Record() ReceiptRecord {
	legs := make([]LegRecord, 0, len(r.Legs))
	for _, leg := range r.Legs {
		legs = append(legs, LegRecord{
			Token:  string(leg.Token),
			From:   string(leg.From),
			To:     string(leg.To),
			Amount: leg.Amount.Dec(),
		})
	}
	return ReceiptRecord{
		InstructionID: r.InstructionID,
		Pool:          r.After.Pair.Key(),
		Kind:          string(r.Kind),
		Holder:        string(r.Holder),
		Sequence:      r.Sequence(),
		Before:        r.Before.View(),
		After:         r.After.View(),
		Legs:          legs,
		AmountIn:      nonZero(r.Outcome.AmountIn),
		AmountOut:     nonZero(r.Outcome.AmountOut),
		Fee:           nonZero(r.Outcome.Fee),
		SharesMinted:  nonZero(r.Outcome.SharesMinted),
		SharesBurned:  nonZero(r.Outcome.SharesBurned),
		Requoted:      r.Requoted,
		AppliedAt:     r.AppliedAt.UTC().Format(time.RFC3339Nano),
	}
}

// MarshalJSON ensures ReceiptRecord is encoded with stable field names.
func (rr ReceiptRecord) MarshalJSON() ([]byte, error) {
	type Alias ReceiptRecord
	return json.Marshal(Alias(rr))
}

// UnmarshalJSON decodes a ReceiptRecord from JSON.
func (rr *ReceiptRecord) UnmarshalJSON(data []byte) error {
	type Alias ReceiptRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*rr = ReceiptRecord(a)
	return nil
}

func nonZero(v Amount) string {
	if v.IsZero() {
		return ""
	}
	return v.Dec()
}
