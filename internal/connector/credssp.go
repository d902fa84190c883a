package connector

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/credssp"
)

// credsspState is the minimal CredSSP sub-state; the heavy state lives
// inside the external security engine.
type credsspState int

const (
	credsspOngoing credsspState = iota
	credsspFinished
	credsspServerError
)

var credsspStateNames = map[credsspState]string{
	credsspOngoing:     "Ongoing",
	credsspFinished:    "Finished",
	credsspServerError: "ServerError",
}

func (s credsspState) Name() string {
	return credsspStateNames[s]
}

func (s credsspState) IsTerminal() bool {
	return s != credsspOngoing
}

// CredsspSequence drives the CredSSP exchange between the transport and the
// external security engine. The driver loop:
//
//	seq := NewCredsspSequence(engine)
//	var req *credssp.TsRequest // nil: the client speaks first
//	for !seq.State().IsTerminal() {
//		generator := seq.ProcessTsRequest(req)
//		state := resolveGenerator(generator)      // network I/O happens here
//		written, _ := seq.HandleProcessResult(state, out)
//		send(out)                                  // when written has a size
//		if seq.State().IsTerminal() { break }
//		frame := readFrame(seq.NextPduHint())
//		req, _ = seq.DecodeServerMessage(frame)
//	}
type CredsspSequence struct {
	engine credssp.Engine
	state  credsspState
}

// NewCredsspSequence builds a sequence around the given engine. The engine
// is bound to the TLS-exported server public key and the client credentials
// by its constructor; the sequence only pumps it.
func NewCredsspSequence(engine credssp.Engine) *CredsspSequence {
	return &CredsspSequence{engine: engine}
}

func (s *CredsspSequence) State() State {
	return s.state
}

// NextPduHint returns the TsRequest length hint while the exchange is
// ongoing.
func (s *CredsspSequence) NextPduHint() core.PduHint {
	if s.state != credsspOngoing {
		return nil
	}
	return credssp.TsRequestHint
}

// DecodeServerMessage parses one inbound TsRequest frame. A server error
// code terminates the exchange.
func (s *CredsspSequence) DecodeServerMessage(frame []byte) (*credssp.TsRequest, error) {
	req, err := credssp.DecodeTsRequest(core.NewReadCursor(frame))
	if err != nil {
		return nil, CustomErr("TsRequest", err)
	}

	if req.ErrorCode != 0 {
		s.state = credsspServerError

		return nil, ReasonErr("TsRequest", "server reported CredSSP error 0x%08X", req.ErrorCode)
	}

	return req, nil
}

// ProcessTsRequest starts one engine step. The returned generator yields the
// network requests the driver must resolve before the step completes.
func (s *CredsspSequence) ProcessTsRequest(req *credssp.TsRequest) credssp.Generator {
	return s.engine.ProcessTsRequest(req)
}

// HandleProcessResult encodes the step's outgoing TsRequest, if any, and
// advances the sub-state.
func (s *CredsspSequence) HandleProcessResult(state *credssp.ClientState, output *core.WriteBuf) (Written, error) {
	if state == nil {
		return WrittenNothing(), GeneralErr("Credssp")
	}

	written := WrittenNothing()

	if state.ReplyNeeded != nil {
		n, err := core.EncodeBuf(state.ReplyNeeded, output)
		if err != nil {
			return WrittenNothing(), CustomErr("TsRequest", err)
		}

		written, err = WrittenSize("TsRequest", n)
		if err != nil {
			return WrittenNothing(), err
		}
	}

	if state.Finished {
		s.state = credsspFinished
	}

	return written, nil
}
