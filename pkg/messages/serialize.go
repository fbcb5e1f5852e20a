package messages

import (
	"bytes"
	"fmt"
	"io"

	envelopefb "github.com/cbodonnell/clash/flatbuffers/envelope"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
)

// SerializeFrame encodes a frame as a zstd compressed flatbuffer.
func SerializeFrame(f *Frame) ([]byte, error) {
	b, err := SerializeFrameFlatbuffer(f)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize frame: %v", err)
	}

	compressed := bytes.NewBuffer(nil)
	compWriter, err := zstd.NewWriter(compressed, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %v", err)
	}
	if _, err := compWriter.Write(b); err != nil {
		return nil, fmt.Errorf("failed to compress frame: %v", err)
	}
	if err := compWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %v", err)
	}

	return compressed.Bytes(), nil
}

// DeserializeFrame decodes a frame produced by SerializeFrame.
func DeserializeFrame(data []byte) (*Frame, error) {
	compReader, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer compReader.Close()

	b, err := io.ReadAll(io.LimitReader(compReader, MessageBufferSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed frame: %v", err)
	}

	frame, err := DeserializeFrameFlatbuffer(b)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize frame: %v", err)
	}

	return frame, nil
}

func SerializeFrameFlatbuffer(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("frame is nil")
	}

	builder := flatbuffers.NewBuilder(len(f.Payload) + 64)

	destination := builder.CreateString(f.Destination)
	id := builder.CreateString(f.ID)
	payload := builder.CreateByteVector(f.Payload)

	envelopefb.EnvelopeStart(builder)
	envelopefb.EnvelopeAddKind(builder, byte(f.Kind))
	envelopefb.EnvelopeAddDestination(builder, destination)
	envelopefb.EnvelopeAddId(builder, id)
	envelopefb.EnvelopeAddPayload(builder, payload)
	envelopeOffset := envelopefb.EnvelopeEnd(builder)
	builder.Finish(envelopeOffset)

	return builder.FinishedBytes(), nil
}

func DeserializeFrameFlatbuffer(b []byte) (f *Frame, err error) {
	if len(b) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("frame too short: %d bytes", len(b))
	}

	// the generated accessors index into b without bounds checks
	defer func() {
		if r := recover(); r != nil {
			f = nil
			err = fmt.Errorf("corrupt frame: %v", r)
		}
	}()

	envelope := envelopefb.GetRootAsEnvelope(b, 0)
	frame := &Frame{
		Kind:        FrameKind(envelope.Kind()),
		ID:          string(envelope.Id()),
		Destination: string(envelope.Destination()),
	}
	if payload := envelope.PayloadBytes(); len(payload) > 0 {
		frame.Payload = append([]byte(nil), payload...)
	}
	if frame.Kind < FrameKindSend || frame.Kind > FrameKindError {
		return nil, fmt.Errorf("unknown frame kind %d", byte(frame.Kind))
	}

	return frame, nil
}
