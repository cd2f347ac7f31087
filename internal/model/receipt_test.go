package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"ammSettle/internal/fixedpoint"
)

func testPair(t *testing.T) Pair {
	t.Helper()
	pair, err := NewPair("56:0xbbbb", "56:0xaaaa")
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	return pair
}

func TestReceiptRecordJSONRoundTrip(t *testing.T) {
	pair := testPair(t)
	before := PoolState{
		Pair:        pair,
		Fee:         3000,
		ReserveA:    fixedpoint.FromUint64(100000),
		ReserveB:    fixedpoint.FromUint64(100000),
		TotalShares: fixedpoint.FromUint64(100000),
		Version:     1,
	}
	after := before
	after.ReserveA = fixedpoint.FromUint64(100100)
	after.ReserveB = fixedpoint.FromUint64(99901)
	after.Version = 2

	receipt := Receipt{
		InstructionID: "3f0c3c8a-6b1e-4d55-9a59-4b3d2d8f2a11",
		Kind:          OpSwapExactIn,
		Holder:        "alice",
		Before:        before,
		After:         after,
		Legs: []Leg{
			{Token: pair.A, From: "alice", To: before.Account(), Amount: fixedpoint.FromUint64(100)},
			{Token: pair.B, From: before.Account(), To: "alice", Amount: fixedpoint.FromUint64(99)},
		},
		Outcome:   Outcome{AmountIn: fixedpoint.FromUint64(100), AmountOut: fixedpoint.FromUint64(99)},
		AppliedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	original := receipt.Record()
	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded ReceiptRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
	if decoded.Sequence != 2 || decoded.Pool != "56:0xaaaa/56:0xbbbb" {
		t.Fatalf("record header mismatch: %+v", decoded)
	}
}

func TestReceiptRecordAmountsAreStrings(t *testing.T) {
	big, err := fixedpoint.Parse("12345678901234567890123")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	receipt := Receipt{
		Kind:    OpAddLiquidity,
		Outcome: Outcome{SharesMinted: big},
		After:   PoolState{Pair: testPair(t), TotalShares: big},
	}

	data, err := json.Marshal(receipt.Record())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got, ok := decoded["shares_minted"].(string); !ok || got != "12345678901234567890123" {
		t.Fatalf("shares_minted should be an exact string, got %v", decoded["shares_minted"])
	}
	if _, ok := decoded["amount_in"]; ok {
		t.Fatalf("zero amounts should be omitted")
	}
	after, ok := decoded["after"].(map[string]interface{})
	if !ok {
		t.Fatalf("after should be an object")
	}
	if _, ok := after["total_shares"].(string); !ok {
		t.Fatalf("total_shares should be string")
	}
}

func TestStateViewRoundTrip(t *testing.T) {
	state := PoolState{
		Pair:        testPair(t),
		Fee:         500,
		ReserveA:    fixedpoint.FromUint64(7),
		ReserveB:    fixedpoint.FromUint64(11),
		TotalShares: fixedpoint.FromUint64(8),
		Version:     42,
	}
	back, err := StateFromView(state.View())
	if err != nil {
		t.Fatalf("from view: %v", err)
	}
	if back != state {
		t.Fatalf("state mismatch: %+v != %+v", back, state)
	}
}
