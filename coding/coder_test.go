package coding

import (
	"bytes"
	"testing"
)

func testData(size int) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	opts := Options{Scheme: RS, N: 4, K: 2}
	c, err := NewRSCoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	data := testData(1024)
	stripe, err := c.Encode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(stripe) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(stripe))
	}

	plan, err := c.PreDecode(nil, false)
	if err != nil {
		t.Fatal(err)
	}
	input := make([][]byte, 0, len(plan.InputChunkIDs))
	for _, id := range plan.InputChunkIDs {
		input = append(input, stripe[id])
	}
	decoded, err := c.Decode(input, plan, false)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	for _, d := range decoded {
		out.Write(d)
	}
	if !bytes.Equal(out.Bytes()[:len(data)], data) {
		t.Fatal("decoded data does not match original")
	}
}

func TestDegradedReadThreeFailures(t *testing.T) {
	opts := Options{Scheme: RS, N: 6, K: 3}
	c, err := NewRSCoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	data := testData(3000)
	stripe, err := c.Encode(data)
	if err != nil {
		t.Fatal(err)
	}

	// Fail 3 of 6 chunks (n-k = 3), still must be recoverable.
	failed := []int{0, 2, 5}
	plan, err := c.PreDecode(failed, false)
	if err != nil {
		t.Fatal(err)
	}
	input := make([][]byte, 0, len(plan.InputChunkIDs))
	for _, id := range plan.InputChunkIDs {
		input = append(input, stripe[id])
	}
	decoded, err := c.Decode(input, plan, false)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	for _, d := range decoded {
		out.Write(d)
	}
	if !bytes.Equal(out.Bytes()[:len(data)], data) {
		t.Fatal("decoded data does not match original after degraded read")
	}
}

func TestPreDecodeSelectsExactlyK(t *testing.T) {
	opts := Options{Scheme: RS, N: 6, K: 3}
	c, err := NewRSCoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	// Only 1 of the 3 tolerable failures actually failed, leaving 5
	// survivors; the plan must still name only k=3 of them so callers can
	// tell the untried remainder apart from the chosen input set.
	plan, err := c.PreDecode([]int{4}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.InputChunkIDs) != 3 {
		t.Fatalf("expected exactly k=3 input chunk ids, got %v", plan.InputChunkIDs)
	}
}

func TestPreDecodeUnrecoverable(t *testing.T) {
	opts := Options{Scheme: RS, N: 4, K: 2}
	c, err := NewRSCoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.PreDecode([]int{0, 1, 2}, false)
	if err != ErrUnrecoverable {
		t.Fatalf("expected ErrUnrecoverable, got %v", err)
	}
}

func TestRepairSingleFailure(t *testing.T) {
	opts := Options{Scheme: RS, N: 4, K: 2}
	c, err := NewRSCoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	data := testData(2048)
	stripe, err := c.Encode(data)
	if err != nil {
		t.Fatal(err)
	}

	failed := []int{1}
	plan, err := c.PreDecode(failed, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.RepairTargets) != 1 || plan.RepairTargets[0] != 1 {
		t.Fatalf("unexpected repair targets: %v", plan.RepairTargets)
	}
	input := make([][]byte, 0, plan.MinNumInputChunks)
	for _, id := range plan.InputChunkIDs[:plan.MinNumInputChunks] {
		input = append(input, stripe[id])
	}
	repaired, err := c.Decode(input, plan, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(repaired) != 1 {
		t.Fatalf("expected 1 repaired chunk, got %d", len(repaired))
	}
	if !bytes.Equal(repaired[0], stripe[1]) {
		t.Fatal("repaired chunk does not match original lost chunk")
	}
}

func TestRepairIdempotentNoFailures(t *testing.T) {
	opts := Options{Scheme: RS, N: 4, K: 2}
	c, err := NewRSCoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := c.PreDecode(nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.RepairTargets) != 0 {
		t.Fatalf("expected no repair targets, got %v", plan.RepairTargets)
	}
}

func TestInvalidParams(t *testing.T) {
	cases := []Options{
		{Scheme: RS, N: 0, K: 1},
		{Scheme: RS, N: 4, K: 0},
		{Scheme: RS, N: 2, K: 4},
	}
	for _, opts := range cases {
		if _, err := NewRSCoder(opts); err != ErrInvalidParams {
			t.Fatalf("opts %+v: expected ErrInvalidParams, got %v", opts, err)
		}
	}
}

func TestBulkVerify(t *testing.T) {
	opts := Options{Scheme: RS, N: 4, K: 2}
	c, err := NewRSCoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	data := testData(4096)
	stripe, err := c.Encode(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := BulkVerify(opts, data, stripe); err != nil {
		t.Fatal(err)
	}
}

func TestCache(t *testing.T) {
	cache := NewCache()
	opts := Options{Scheme: RS, N: 4, K: 2}
	e1, err := cache.Get(opts)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := cache.Get(opts)
	if err != nil {
		t.Fatal(err)
	}
	if e1 != e2 {
		t.Fatal("expected cache to return the same engine instance")
	}
}
