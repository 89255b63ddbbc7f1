// Package pb holds the streaming overlay's wire envelopes. Hand-authored
// in the classic protoc-gen-go v1 shape (struct tags plus
// Reset/String/ProtoMessage) since no .proto compiler runs here;
// github.com/golang/protobuf's legacy message support marshals this shape
// through its reflection-based encoder the same way it does for any
// other pre-APIv2 generated file.
package pb

import "fmt"

// StartPosition selects where in a channel's history a subscription
// begins receiving messages.
type StartPosition int32

const (
	StartPosition_NewOnly        StartPosition = 0
	StartPosition_LastReceived   StartPosition = 1
	StartPosition_TimeDeltaStart StartPosition = 2
	StartPosition_SequenceStart  StartPosition = 3
	StartPosition_First          StartPosition = 4
)

func (p StartPosition) String() string {
	switch p {
	case StartPosition_NewOnly:
		return "NewOnly"
	case StartPosition_LastReceived:
		return "LastReceived"
	case StartPosition_TimeDeltaStart:
		return "TimeDeltaStart"
	case StartPosition_SequenceStart:
		return "SequenceStart"
	case StartPosition_First:
		return "First"
	default:
		return "Unknown"
	}
}

// ConnectRequest is sent to the discovery subject to open a session.
type ConnectRequest struct {
	ClientID       string `protobuf:"bytes,1,opt,name=client_id,json=clientId" json:"client_id,omitempty"`
	HeartbeatInbox string `protobuf:"bytes,2,opt,name=heartbeat_inbox,json=heartbeatInbox" json:"heartbeat_inbox,omitempty"`
	ConnID         []byte `protobuf:"bytes,3,opt,name=conn_id,json=connId,proto3" json:"conn_id,omitempty"`
	Protocol       int32  `protobuf:"varint,4,opt,name=protocol" json:"protocol,omitempty"`
}

func (m *ConnectRequest) Reset()         { *m = ConnectRequest{} }
func (m *ConnectRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*ConnectRequest) ProtoMessage()    {}

// ConnectResponse carries the per-session subjects the server assigned.
type ConnectResponse struct {
	PubPrefix     string `protobuf:"bytes,1,opt,name=pub_prefix,json=pubPrefix" json:"pub_prefix,omitempty"`
	SubRequests   string `protobuf:"bytes,2,opt,name=sub_requests,json=subRequests" json:"sub_requests,omitempty"`
	UnsubRequests string `protobuf:"bytes,3,opt,name=unsub_requests,json=unsubRequests" json:"unsub_requests,omitempty"`
	CloseRequests string `protobuf:"bytes,4,opt,name=close_requests,json=closeRequests" json:"close_requests,omitempty"`
	Error         string `protobuf:"bytes,5,opt,name=error" json:"error,omitempty"`
}

func (m *ConnectResponse) Reset()         { *m = ConnectResponse{} }
func (m *ConnectResponse) String() string { return fmt.Sprintf("%+v", *m) }
func (*ConnectResponse) ProtoMessage()    {}

// SubscriptionRequest asks the server to register interest in subject.
type SubscriptionRequest struct {
	ClientID        string        `protobuf:"bytes,1,opt,name=client_id,json=clientId" json:"client_id,omitempty"`
	Subject         string        `protobuf:"bytes,2,opt,name=subject" json:"subject,omitempty"`
	QGroup          string        `protobuf:"bytes,3,opt,name=q_group,json=qGroup" json:"q_group,omitempty"`
	DurableName     string        `protobuf:"bytes,4,opt,name=durable_name,json=durableName" json:"durable_name,omitempty"`
	MaxInFlight     int32         `protobuf:"varint,5,opt,name=max_in_flight,json=maxInFlight" json:"max_in_flight,omitempty"`
	AckWaitInSecs   int32         `protobuf:"varint,6,opt,name=ack_wait_in_secs,json=ackWaitInSecs" json:"ack_wait_in_secs,omitempty"`
	StartPosition   StartPosition `protobuf:"varint,7,opt,name=start_position,json=startPosition,enum=pb.StartPosition" json:"start_position,omitempty"`
	StartSequence   uint64        `protobuf:"varint,8,opt,name=start_sequence,json=startSequence" json:"start_sequence,omitempty"`
	StartTimeDelta  int64         `protobuf:"varint,9,opt,name=start_time_delta,json=startTimeDelta" json:"start_time_delta,omitempty"`
	Inbox           string        `protobuf:"bytes,10,opt,name=inbox" json:"inbox,omitempty"`
}

func (m *SubscriptionRequest) Reset()         { *m = SubscriptionRequest{} }
func (m *SubscriptionRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*SubscriptionRequest) ProtoMessage()    {}

// SubscriptionResponse is the server's reply to a SubscriptionRequest.
type SubscriptionResponse struct {
	AckInbox string `protobuf:"bytes,1,opt,name=ack_inbox,json=ackInbox" json:"ack_inbox,omitempty"`
	Error    string `protobuf:"bytes,2,opt,name=error" json:"error,omitempty"`
}

func (m *SubscriptionResponse) Reset()         { *m = SubscriptionResponse{} }
func (m *SubscriptionResponse) String() string { return fmt.Sprintf("%+v", *m) }
func (*SubscriptionResponse) ProtoMessage()    {}

// UnsubscribeRequest cancels an existing subscription; with DurableName
// set, the durable registration is removed along with it.
type UnsubscribeRequest struct {
	ClientID    string `protobuf:"bytes,1,opt,name=client_id,json=clientId" json:"client_id,omitempty"`
	Subject     string `protobuf:"bytes,2,opt,name=subject" json:"subject,omitempty"`
	Inbox       string `protobuf:"bytes,3,opt,name=inbox" json:"inbox,omitempty"`
	DurableName string `protobuf:"bytes,4,opt,name=durable_name,json=durableName" json:"durable_name,omitempty"`
}

func (m *UnsubscribeRequest) Reset()         { *m = UnsubscribeRequest{} }
func (m *UnsubscribeRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*UnsubscribeRequest) ProtoMessage()    {}

// CloseRequest ends a session.
type CloseRequest struct {
	ClientID string `protobuf:"bytes,1,opt,name=client_id,json=clientId" json:"client_id,omitempty"`
}

func (m *CloseRequest) Reset()         { *m = CloseRequest{} }
func (m *CloseRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*CloseRequest) ProtoMessage()    {}

// CloseResponse is the server's reply to a CloseRequest.
type CloseResponse struct {
	Error string `protobuf:"bytes,1,opt,name=error" json:"error,omitempty"`
}

func (m *CloseResponse) Reset()         { *m = CloseResponse{} }
func (m *CloseResponse) String() string { return fmt.Sprintf("%+v", *m) }
func (*CloseResponse) ProtoMessage()    {}

// PubMsg is the envelope published to <pub_prefix>.<subject>.
type PubMsg struct {
	ClientID string `protobuf:"bytes,1,opt,name=client_id,json=clientId" json:"client_id,omitempty"`
	Guid     string `protobuf:"bytes,2,opt,name=guid" json:"guid,omitempty"`
	Subject  string `protobuf:"bytes,3,opt,name=subject" json:"subject,omitempty"`
	Reply    string `protobuf:"bytes,4,opt,name=reply" json:"reply,omitempty"`
	Data     []byte `protobuf:"bytes,5,opt,name=data,proto3" json:"data,omitempty"`
	ConnID   []byte `protobuf:"bytes,6,opt,name=conn_id,json=connId,proto3" json:"conn_id,omitempty"`
	Sha256   []byte `protobuf:"bytes,7,opt,name=sha256,proto3" json:"sha256,omitempty"`
}

func (m *PubMsg) Reset()         { *m = PubMsg{} }
func (m *PubMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*PubMsg) ProtoMessage()    {}

// MsgProto is the envelope the server delivers to a subscription's inbox.
type MsgProto struct {
	Sequence    uint64 `protobuf:"varint,1,opt,name=sequence" json:"sequence,omitempty"`
	Subject     string `protobuf:"bytes,2,opt,name=subject" json:"subject,omitempty"`
	Reply       string `protobuf:"bytes,3,opt,name=reply" json:"reply,omitempty"`
	Data        []byte `protobuf:"bytes,4,opt,name=data,proto3" json:"data,omitempty"`
	Timestamp   int64  `protobuf:"varint,5,opt,name=timestamp" json:"timestamp,omitempty"`
	CRC32       uint32 `protobuf:"varint,6,opt,name=crc32" json:"crc32,omitempty"`
	Redelivered bool   `protobuf:"varint,7,opt,name=redelivered" json:"redelivered,omitempty"`
}

func (m *MsgProto) Reset()         { *m = MsgProto{} }
func (m *MsgProto) String() string { return fmt.Sprintf("%+v", *m) }
func (*MsgProto) ProtoMessage()    {}

// Ack acknowledges a delivered message by sequence.
type Ack struct {
	Subject  string `protobuf:"bytes,1,opt,name=subject" json:"subject,omitempty"`
	Sequence uint64 `protobuf:"varint,2,opt,name=sequence" json:"sequence,omitempty"`
}

func (m *Ack) Reset()         { *m = Ack{} }
func (m *Ack) String() string { return fmt.Sprintf("%+v", *m) }
func (*Ack) ProtoMessage()    {}
