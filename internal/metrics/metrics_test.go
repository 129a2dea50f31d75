package metrics

import (
	"testing"
	"time"
)

func TestRecordGeneration(t *testing.T) {
	// Verify the exported metric helpers exist and don't panic.
	RecordGeneration("image", 2*time.Second)
	RecordGeneration("video", 45*time.Second)
}

func TestRecordGenerationError(t *testing.T) {
	RecordGenerationError("text_encoder")
	RecordGenerationError("vae")
	RecordGenerationError("transformer")
}

func TestRecordSchedule(t *testing.T) {
	RecordSchedule(64, 25, 1)
	RecordSchedule(128, 100, 9)
}

func TestRecordPromptBatch(t *testing.T) {
	RecordPromptBatch(1)
	RecordPromptBatch(4)
	RecordPromptBatch(16)
}

func TestRecordCollaboratorCall(t *testing.T) {
	RecordCollaboratorCall("text_encoder", "encode_prompts", 100*time.Millisecond)
	RecordCollaboratorCall("vae", "encode", 50*time.Millisecond)
	RecordCollaboratorCall("vae", "decode", 80*time.Millisecond)
	RecordCollaboratorCall("transformer", "generate", 12*time.Second)
}

func TestRemoteByteCounters(t *testing.T) {
	RemoteBytesSent.Add(1024)
	RemoteBytesReceived.Add(4096)
}
