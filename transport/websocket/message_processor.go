package websocket

import (
	"bufio"
	"crypto/sha1" //nolint: gosec // required by RFC 6455
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rocketscienceinc/tictactoe-board/internal/entity"
	"github.com/rocketscienceinc/tictactoe-board/internal/viewmodel"
)

const (
	opContinuation byte = 0x0
	opText         byte = 0x1
	opBinary       byte = 0x2
	opClose        byte = 0x8
	opPing         byte = 0x9
	opPong         byte = 0xA

	maxPayloadSize = 64 << 10

	acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
)

var (
	errConnectionClosed = errors.New("connection closed by peer")
	errPayloadTooLarge  = errors.New("payload too large")
	errUnexpectedFrame  = errors.New("unexpected frame")
)

// frame represents a WebSocket frame and its metadata.
type frame struct {
	isFin   bool
	opCode  byte
	payload []byte
}

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Payload struct {
	Session string               `json:"session,omitempty"`
	Board   *viewmodel.BoardView `json:"board,omitempty"`
	Cell    *int                 `json:"cell,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// GenerateAcceptKey - computes Sec-WebSocket-Accept for the client's key.
func GenerateAcceptKey(key string) string {
	hash := sha1.Sum([]byte(key + acceptGUID)) //nolint: gosec // required by RFC 6455
	return base64.StdEncoding.EncodeToString(hash[:])
}

func writeHandshake(w *bufio.Writer, key string) error {
	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + GenerateAcceptKey(key) + "\r\n\r\n"

	if _, err := w.WriteString(response); err != nil {
		return fmt.Errorf("failed to write handshake: %w", err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush handshake: %w", err)
	}

	return nil
}

// pushState - observer that sends every published board to the client.
func (that *session) pushState(board entity.Board) {
	view := viewmodel.NewBoardView(board)

	if err := that.sendMessage(actionBoardState, Payload{Board: &view}); err != nil {
		that.logger.Error("failed to push board state", "error", err)
	}
}

func (that *session) sendError(action string, cause error) error {
	return that.sendMessage(action, Payload{Error: cause.Error()})
}

func (that *session) sendMessage(action string, payload Payload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	responseBytes, err := json.Marshal(Message{
		Action:  action,
		Payload: payloadBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	return that.writeFrame(frame{isFin: true, opCode: opText, payload: responseBytes})
}

func (that *session) writeFrame(f frame) error {
	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	return writeFrame(that.bufrw.Writer, f)
}

// readMessage - returns the next complete data message, answering control frames on the way.
func (that *session) readMessage() ([]byte, error) {
	var message []byte

	for {
		f, err := readFrame(that.bufrw.Reader)
		if err != nil {
			return nil, err
		}

		switch f.opCode {
		case opClose:
			// echo the close so the peer can finish the closing handshake
			_ = that.writeFrame(frame{isFin: true, opCode: opClose, payload: f.payload})
			return nil, errConnectionClosed
		case opPing:
			if err = that.writeFrame(frame{isFin: true, opCode: opPong, payload: f.payload}); err != nil {
				return nil, err
			}
			continue
		case opPong:
			continue
		case opText, opBinary:
			if message != nil {
				return nil, fmt.Errorf("%w: data frame inside fragmented message", errUnexpectedFrame)
			}
			message = f.payload
		case opContinuation:
			if message == nil {
				return nil, fmt.Errorf("%w: continuation without start", errUnexpectedFrame)
			}
			message = append(message, f.payload...)
		default:
			return nil, fmt.Errorf("%w: opcode %d", errUnexpectedFrame, f.opCode)
		}

		if len(message) > maxPayloadSize {
			return nil, errPayloadTooLarge
		}

		if f.isFin {
			return message, nil
		}
	}
}

func writeFrame(w *bufio.Writer, f frame) error {
	header := make([]byte, 2, 10)
	header[0] = f.opCode
	if f.isFin {
		header[0] |= 0x80
	}

	length := len(f.payload)

	switch {
	case length < 126:
		header[1] = byte(length)
	case length < 1<<16:
		header[1] = 126
		header = binary.BigEndian.AppendUint16(header, uint16(length))
	default:
		header[1] = 127
		header = binary.BigEndian.AppendUint64(header, uint64(length))
	}

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}

	if _, err := w.Write(f.payload); err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}

	return nil
}

func readFrame(r io.Reader) (frame, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) {
			return frame{}, errConnectionClosed
		}
		return frame{}, fmt.Errorf("failed to read header: %w", err)
	}

	f := frame{
		isFin:  header[0]&0x80 != 0,
		opCode: header[0] & 0x0f,
	}
	masked := header[1]&0x80 != 0

	size, err := readPayloadLength(r, header[1]&0x7f)
	if err != nil {
		return frame{}, err
	}

	if size > maxPayloadSize {
		return frame{}, errPayloadTooLarge
	}

	var mask [4]byte
	if masked {
		if _, err = io.ReadFull(r, mask[:]); err != nil {
			return frame{}, fmt.Errorf("failed to read mask: %w", err)
		}
	}

	f.payload = make([]byte, size)
	if _, err = io.ReadFull(r, f.payload); err != nil {
		return frame{}, fmt.Errorf("failed to read payload: %w", err)
	}

	if masked {
		for i := range f.payload {
			f.payload[i] ^= mask[i%4]
		}
	}

	return f, nil
}

func readPayloadLength(r io.Reader, payloadLen byte) (uint64, error) {
	switch payloadLen {
	case 126:
		length := make([]byte, 2)
		if _, err := io.ReadFull(r, length); err != nil {
			return 0, fmt.Errorf("failed to read payload length: %w", err)
		}
		return uint64(binary.BigEndian.Uint16(length)), nil
	case 127:
		length := make([]byte, 8)
		if _, err := io.ReadFull(r, length); err != nil {
			return 0, fmt.Errorf("failed to read payload length: %w", err)
		}
		return binary.BigEndian.Uint64(length), nil
	default:
		return uint64(payloadLen), nil
	}
}
