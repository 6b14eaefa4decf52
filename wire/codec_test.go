package wire

import (
	"bytes"
	"testing"
)

func TestRequestRoundTripWrite(t *testing.T) {
	req := &Request{
		Opcode:       WriteFileReq,
		NamespaceID:  3,
		Name:         "objects/a.bin",
		StorageClass: "hot",
		Data:         []byte("payload"),
	}
	var buf bytes.Buffer
	if err := EncodeRequest(&buf, req); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeRequest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Opcode != req.Opcode || got.NamespaceID != req.NamespaceID || got.Name != req.Name ||
		got.StorageClass != req.StorageClass || !bytes.Equal(got.Data, req.Data) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
	}
}

func TestRequestRoundTripReadRange(t *testing.T) {
	req := &Request{
		Opcode:      ReadFileRangeReq,
		NamespaceID: 1,
		Name:        "objects/b.bin",
		Offset:      128,
		Size:        64,
	}
	var buf bytes.Buffer
	if err := EncodeRequest(&buf, req); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeRequest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Offset != req.Offset || got.Size != req.Size || got.Name != req.Name {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
	}
}

func TestRequestRoundTripRename(t *testing.T) {
	req := &Request{Opcode: RenameFileReq, NamespaceID: 2, OldName: "a", NewName: "b"}
	var buf bytes.Buffer
	if err := EncodeRequest(&buf, req); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeRequest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.OldName != "a" || got.NewName != "b" {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestReplyRoundTripReadFile(t *testing.T) {
	reply := &Reply{Opcode: ReadFileRepSuccess, Size: 7, Data: []byte("payload")}
	var buf bytes.Buffer
	if err := EncodeReply(&buf, ReadFileReq, reply); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeReply(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Opcode != ReadFileRepSuccess || got.Size != 7 || !bytes.Equal(got.Data, reply.Data) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestReplyRoundTripFailMate(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeReply(&buf, WriteFileReq, nil); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeReply(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Opcode != WriteFileRepFail {
		t.Fatalf("expected WriteFileRepFail, got %v", got.Opcode)
	}
	if got.Opcode.IsSuccess() {
		t.Fatal("fail mate reported success")
	}
}

func TestReplyRoundTripFileList(t *testing.T) {
	reply := &Reply{
		Opcode: GetFileListRepSuccess,
		Files: []FileListEntry{
			{Name: "a", Size: 1, CreateTime: 2, AccessTime: 3, ModifyTime: 4},
			{Name: "b", Size: 5, CreateTime: 6, AccessTime: 7, ModifyTime: 8},
		},
	}
	var buf bytes.Buffer
	if err := EncodeReply(&buf, GetFileListReq, reply); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeReply(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Files) != 2 || got.Files[1].Name != "b" || got.Files[1].ModifyTime != 8 {
		t.Fatalf("round trip mismatch: got %+v", got.Files)
	}
}

func TestReplyRoundTripAgentStatus(t *testing.T) {
	reply := &Reply{
		Opcode: GetAgentStatusRepSuccess,
		Agents: []AgentEntry{
			{
				Alive:    true,
				IP:       "10.0.0.1",
				HostType: 1,
				Sysinfo:  SysInfo{CPUUsage: []float32{0.1, 0.2}, MemTotal: 1024, MemFree: 512},
				Containers: []ContainerEntry{
					{ID: 1, Type: 0, Usage: 10, Capacity: 100},
					{ID: 2, Type: 1, Usage: 20, Capacity: 200},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := EncodeReply(&buf, GetAgentStatusReq, reply); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeReply(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Agents) != 1 || got.Agents[0].IP != "10.0.0.1" || len(got.Agents[0].Containers) != 2 {
		t.Fatalf("round trip mismatch: got %+v", got.Agents)
	}
	if got.Agents[0].Containers[1].Capacity != 200 {
		t.Fatalf("container mismatch: got %+v", got.Agents[0].Containers[1])
	}
}

func TestOpcodeFailMate(t *testing.T) {
	if WriteFileReq.FailMate() != WriteFileRepFail {
		t.Fatalf("unexpected fail mate: %v", WriteFileReq.FailMate())
	}
	if UnknownClientOp.FailMate() != UnknownClientOp {
		t.Fatalf("expected UnknownClientOp for an unrecognized request opcode")
	}
}
