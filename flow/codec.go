package flow

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/MrEthical07/agentAuth/activity"
)

const (
	flowRecordVersion1 = 1

	maxFieldLen = 1 << 20
)

var tagCodes = map[Tag]byte{
	TagNotStarted: 0,
	TagBegin:      1,
	TagContinue:   2,
	TagComplete:   3,
	TagFailure:    4,
}

var codeTags = map[byte]Tag{
	0: TagNotStarted,
	1: TagBegin,
	2: TagContinue,
	3: TagComplete,
	4: TagFailure,
}

// Encode serializes s into the versioned record format.
func Encode(s *FlowState) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil flow state")
	}
	code, ok := tagCodes[s.Tag]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tag %q", ErrCorruptState, s.Tag)
	}
	if s.AttemptsRemaining < math.MinInt32 || s.AttemptsRemaining > math.MaxInt32 {
		return nil, fmt.Errorf("%w: attempts out of range", ErrCorruptState)
	}

	var buf bytes.Buffer
	buf.WriteByte(flowRecordVersion1)
	buf.WriteByte(code)

	if err := binary.Write(&buf, binary.BigEndian, int64(s.AttemptsRemaining)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.Expiration); err != nil {
		return nil, err
	}
	if err := writeBytes(&buf, []byte(s.UserToken)); err != nil {
		return nil, err
	}

	if s.ContinuationActivity == nil {
		buf.WriteByte(0)
		return buf.Bytes(), nil
	}
	buf.WriteByte(1)
	if err := writeActivity(&buf, s.ContinuationActivity); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode.
func Decode(data []byte) (*FlowState, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != flowRecordVersion1 {
		return nil, errors.New("invalid flow record version")
	}

	code, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	tag, ok := codeTags[code]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tag code %d", ErrCorruptState, code)
	}

	s := &FlowState{Tag: tag}

	var attempts int64
	if err := binary.Read(reader, binary.BigEndian, &attempts); err != nil {
		return nil, err
	}
	if attempts < math.MinInt32 || attempts > math.MaxInt32 {
		return nil, fmt.Errorf("%w: attempts out of range", ErrCorruptState)
	}
	s.AttemptsRemaining = int(attempts)

	if err := binary.Read(reader, binary.BigEndian, &s.Expiration); err != nil {
		return nil, err
	}

	token, err := readBytes(reader)
	if err != nil {
		return nil, err
	}
	s.UserToken = string(token)

	hasActivity, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	switch hasActivity {
	case 0:
	case 1:
		act, err := readActivity(reader)
		if err != nil {
			return nil, err
		}
		s.ContinuationActivity = act
	default:
		return nil, fmt.Errorf("%w: invalid activity marker", ErrCorruptState)
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in flow record")
	}
	return s, nil
}

func writeActivity(buf *bytes.Buffer, a *activity.Activity) error {
	fields := [][]byte{
		[]byte(a.Type),
		[]byte(a.ID),
		[]byte(a.ChannelID),
		[]byte(a.ServiceURL),
		[]byte(a.From.ID),
		[]byte(a.From.Name),
		[]byte(a.Recipient.ID),
		[]byte(a.Recipient.Name),
		[]byte(a.Conversation.ID),
		[]byte(a.Conversation.TenantID),
		[]byte(a.ReplyToID),
		[]byte(a.Text),
		[]byte(a.Name),
		a.Value,
	}
	for _, f := range fields {
		if err := writeBytes(buf, f); err != nil {
			return err
		}
	}

	if len(a.Attachments) > math.MaxUint16 {
		return errors.New("too many attachments")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(a.Attachments))); err != nil {
		return err
	}
	for _, att := range a.Attachments {
		if err := writeBytes(buf, []byte(att.ContentType)); err != nil {
			return err
		}
		if err := writeBytes(buf, att.Content); err != nil {
			return err
		}
	}
	return nil
}

func readActivity(reader *bytes.Reader) (*activity.Activity, error) {
	var fields [14][]byte
	for i := range fields {
		f, err := readBytes(reader)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}

	a := &activity.Activity{
		Type:       string(fields[0]),
		ID:         string(fields[1]),
		ChannelID:  string(fields[2]),
		ServiceURL: string(fields[3]),
		From: activity.ChannelAccount{
			ID:   string(fields[4]),
			Name: string(fields[5]),
		},
		Recipient: activity.ChannelAccount{
			ID:   string(fields[6]),
			Name: string(fields[7]),
		},
		Conversation: activity.ConversationAccount{
			ID:       string(fields[8]),
			TenantID: string(fields[9]),
		},
		ReplyToID: string(fields[10]),
		Text:      string(fields[11]),
		Name:      string(fields[12]),
	}
	if len(fields[13]) > 0 {
		a.Value = fields[13]
	}

	var count uint16
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	if count > 0 {
		a.Attachments = make([]activity.Attachment, count)
	}
	for i := 0; i < int(count); i++ {
		contentType, err := readBytes(reader)
		if err != nil {
			return nil, err
		}
		content, err := readBytes(reader)
		if err != nil {
			return nil, err
		}
		a.Attachments[i].ContentType = string(contentType)
		if len(content) > 0 {
			a.Attachments[i].Content = content
		}
	}
	return a, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) error {
	if len(b) > maxFieldLen {
		return errors.New("flow record field length exceeded")
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func readBytes(reader *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n > maxFieldLen || int(n) > reader.Len() {
		return nil, fmt.Errorf("%w: field length %d", ErrCorruptState, n)
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}
