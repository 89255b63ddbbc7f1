// Copyright 2012 Apcera Inc. All rights reserved.

package nats

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// OpKind is the closed alphabet of Core PubSub operations (§4.A). Inbound
// routing is a single exhaustive switch over this type rather than
// hash-keyed dispatch, per the "tagged-variant operations" design note.
type OpKind uint8

const (
	OpUnknown OpKind = iota
	OpConnect
	OpPub
	OpSub
	OpUnsub
	OpMsg
	OpPing
	OpPong
	OpInfo
	OpOK
	OpErr
	OpClose
)

const (
	crlf = "\r\n"

	opConnectText = "CONNECT"
	opPubText     = "PUB"
	opSubText     = "SUB"
	opUnsubText   = "UNSUB"
	opMsgText     = "MSG"
	opPingText    = "PING"
	opPongText    = "PONG"
	opInfoText    = "INFO"
	opOKText      = "+OK"
	opErrText     = "-ERR"
	opCloseText   = "CLOSE"
)

// the size of the bufio reader/writer layered on top of the socket.
const defaultBufSize = 32768

// connectInfo is the JSON payload carried by CONNECT, per the external
// interface's recognized option set.
type connectInfo struct {
	Verbose      bool   `json:"verbose"`
	Pedantic     bool   `json:"pedantic"`
	TLSRequired  bool   `json:"tls_required"`
	AuthToken    string `json:"auth_token,omitempty"`
	User         string `json:"user,omitempty"`
	Pass         string `json:"pass,omitempty"`
	Name         string `json:"name,omitempty"`
	Lang         string `json:"lang"`
	Version      string `json:"version"`
	Protocol     int    `json:"protocol"`
	Echo         bool   `json:"echo"`
	Sig          string `json:"sig,omitempty"`
	JWT          string `json:"jwt,omitempty"`
	NKey         string `json:"nkey,omitempty"`
}

// ServerInfo is the decoded INFO payload, replaced atomically whenever a
// new INFO frame arrives (§3 "Server info").
type ServerInfo struct {
	ID           string `json:"server_id"`
	Host         string `json:"host"`
	Port         uint   `json:"port"`
	Version      string `json:"version"`
	AuthRequired bool   `json:"auth_required"`
	TLSRequired  bool   `json:"tls_required"`
	MaxPayload   int64  `json:"max_payload"`
}

// Op is a single decoded inbound operation. Only the fields relevant to
// Kind are populated.
type Op struct {
	Kind    OpKind
	Subject string
	Queue   string
	Sid     string
	ReplyTo string
	Payload []byte
	Info    ServerInfo
	ErrText string
}

func encodeConnect(ci connectInfo) ([]byte, error) {
	b, err := json.Marshal(ci)
	if err != nil {
		return nil, errors.Wrap(err, "encode CONNECT")
	}
	return []byte(fmt.Sprintf("CONNECT %s%s", b, crlf)), nil
}

func encodePub(subject, replyTo string, data []byte) []byte {
	var sb strings.Builder
	if replyTo == "" {
		fmt.Fprintf(&sb, "PUB %s %d%s", subject, len(data), crlf)
	} else {
		fmt.Fprintf(&sb, "PUB %s %s %d%s", subject, replyTo, len(data), crlf)
	}
	sb.Write(data)
	sb.WriteString(crlf)
	return []byte(sb.String())
}

func encodeSub(subject, queue, sid string) []byte {
	return []byte(fmt.Sprintf("SUB %s %s %s%s", subject, queue, sid, crlf))
}

func encodeUnsub(sid string, max int) []byte {
	if max > 0 {
		return []byte(fmt.Sprintf("UNSUB %s %d%s", sid, max, crlf))
	}
	return []byte(fmt.Sprintf("UNSUB %s%s", sid, crlf))
}

func encodePing() []byte { return []byte("PING" + crlf) }
func encodePong() []byte { return []byte("PONG" + crlf) }

// controlLine is one line of the line-oriented control protocol, before
// any payload bytes that follow it (PUB/MSG).
type controlLine struct {
	op   string
	args string
}

// readControlLine reads a single CRLF-terminated control line from br.
// br is a bufio.Reader, which already gives us the "straddles reads"
// buffering §4.A requires without any custom lookahead buffer of our own.
func readControlLine(br *bufio.Reader) (controlLine, error) {
	line, isPrefix, err := br.ReadLine()
	if err != nil {
		return controlLine{}, err
	}
	if isPrefix {
		return controlLine{}, newError(KindProtocolDecode, errors.New("nats: control line too long"))
	}
	s := string(line)
	toks := strings.SplitN(s, " ", 2)
	switch len(toks) {
	case 1:
		return controlLine{op: strings.TrimSpace(toks[0])}, nil
	case 2:
		return controlLine{op: strings.TrimSpace(toks[0]), args: strings.TrimSpace(toks[1])}, nil
	default:
		return controlLine{}, nil
	}
}

// decodeMsgArgs parses the args following "MSG", handling both the
// 3-token (no reply) and 4-token (with reply) forms.
func decodeMsgArgs(args string) (subject, sid, replyTo string, blen int, err error) {
	toks := strings.Fields(args)
	switch len(toks) {
	case 3:
		subject, sid = toks[0], toks[1]
		_, err = fmt.Sscanf(toks[2], "%d", &blen)
	case 4:
		subject, sid, replyTo = toks[0], toks[1], toks[2]
		_, err = fmt.Sscanf(toks[3], "%d", &blen)
	default:
		err = errors.New("nats: malformed MSG arguments")
	}
	if err != nil {
		err = newError(KindProtocolDecode, errors.Wrap(err, "decode MSG"))
	}
	return
}

// decodeOp turns one control line (and, for MSG, its payload bytes read
// separately by the caller via io.ReadFull) into an Op. The payload for
// MSG is filled in by the caller after this returns, since only the
// caller knows how many bytes to read off the socket.
func decodeOp(cl controlLine) (Op, error) {
	switch cl.op {
	case opInfoText:
		var info ServerInfo
		if cl.args != "" {
			if err := json.Unmarshal([]byte(cl.args), &info); err != nil {
				return Op{}, newError(KindProtocolDecode, errors.Wrap(err, "decode INFO"))
			}
		}
		return Op{Kind: OpInfo, Info: info}, nil
	case opPingText:
		return Op{Kind: OpPing}, nil
	case opPongText:
		return Op{Kind: OpPong}, nil
	case opOKText:
		return Op{Kind: OpOK}, nil
	case opErrText:
		return Op{Kind: OpErr, ErrText: cl.args}, nil
	case opCloseText:
		return Op{Kind: OpClose}, nil
	case opMsgText:
		subject, sid, replyTo, blen, err := decodeMsgArgs(cl.args)
		if err != nil {
			return Op{}, err
		}
		return Op{Kind: OpMsg, Subject: subject, Sid: sid, ReplyTo: replyTo, Payload: make([]byte, blen)}, nil
	case "":
		return Op{Kind: OpUnknown}, nil
	default:
		return Op{Kind: OpUnknown}, nil
	}
}
