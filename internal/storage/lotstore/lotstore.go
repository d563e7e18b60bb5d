// Package lotstore persists lot, bid and reward snapshots over a key-value
// database. Records are msgpack encoded; bodies above a size threshold are
// lz4 compressed with the original length carried in the frame header.
package lotstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4"
	"github.com/ugorji/go/codec"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/house"
	"github.com/openclear/auctiond/internal/core/token"
	"github.com/openclear/auctiond/internal/storage/database"
)

const (
	frameRaw = 0x00
	frameLZ4 = 0x01

	// compressThreshold is the body size above which frames are compressed.
	compressThreshold = 256
)

var (
	keyLotPrefix    = []byte("lot/")
	keyBidPrefix    = []byte("bid/")
	keyRewardPrefix = []byte("reward/")
)

var msgpackHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{WriteExt: true}
	h.Canonical = true
	return h
}()

// Store implements house.Store over a database.DB.
type Store struct {
	db database.DB
}

func New(db database.DB) *Store {
	return &Store{db: db}
}

type rewardRecord struct {
	Recipient string `codec:"recipient"`
	Token     string `codec:"token"`
	Balance   string `codec:"balance"`
}

func (s *Store) SaveLot(snap house.LotSnapshot) error {
	return s.put(lotKey(snap.ID), snap)
}

func (s *Store) SaveBid(snap house.BidSnapshot) error {
	return s.put(bidKey(snap.LotID, snap.ID), snap)
}

func (s *Store) SaveReward(recipient token.Address, tkn token.Token, balance amount.Amount) error {
	rec := rewardRecord{
		Recipient: string(recipient),
		Token:     string(tkn),
		Balance:   balance.String(),
	}
	return s.put(rewardKey(recipient, tkn), rec)
}

// Lot reads back one persisted lot snapshot.
func (s *Store) Lot(id uint64) (house.LotSnapshot, error) {
	var snap house.LotSnapshot
	err := s.get(lotKey(id), &snap)
	return snap, err
}

// Lots returns every persisted lot snapshot in key order.
func (s *Store) Lots() ([]house.LotSnapshot, error) {
	var out []house.LotSnapshot
	err := s.scan(keyLotPrefix, func(val []byte) error {
		var snap house.LotSnapshot
		if err := decodeFrame(val, &snap); err != nil {
			return err
		}
		out = append(out, snap)
		return nil
	})
	return out, err
}

// Bids returns every persisted bid snapshot for one lot.
func (s *Store) Bids(lotID uint64) ([]house.BidSnapshot, error) {
	prefix := append(append([]byte{}, keyBidPrefix...), u64be(lotID)...)
	var out []house.BidSnapshot
	err := s.scan(prefix, func(val []byte) error {
		var snap house.BidSnapshot
		if err := decodeFrame(val, &snap); err != nil {
			return err
		}
		out = append(out, snap)
		return nil
	})
	return out, err
}

// Rewards returns every persisted reward balance.
func (s *Store) Rewards() (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	err := s.scan(keyRewardPrefix, func(val []byte) error {
		var rec rewardRecord
		if err := decodeFrame(val, &rec); err != nil {
			return err
		}
		byToken, ok := out[rec.Recipient]
		if !ok {
			byToken = make(map[string]string)
			out[rec.Recipient] = byToken
		}
		byToken[rec.Token] = rec.Balance
		return nil
	})
	return out, err
}

func (s *Store) put(key []byte, v any) error {
	frame, err := encodeFrame(v)
	if err != nil {
		return err
	}
	return s.db.Write(context.Background(), key, frame)
}

func (s *Store) get(key []byte, v any) error {
	val, err := s.db.Read(context.Background(), key)
	if err != nil {
		return err
	}
	return decodeFrame(val, v)
}

func (s *Store) scan(prefix []byte, fn func(val []byte) error) error {
	iter, err := s.db.Iterator(context.Background(), prefix, database.PrefixEnd(prefix))
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func encodeFrame(v any) ([]byte, error) {
	var body []byte
	enc := codec.NewEncoderBytes(&body, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	if len(body) <= compressThreshold {
		return append([]byte{frameRaw}, body...), nil
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(body)))
	n, err := lz4.CompressBlock(body, compressed, nil)
	if err != nil || n == 0 || n >= len(body) {
		// Incompressible bodies are stored raw.
		return append([]byte{frameRaw}, body...), nil
	}

	frame := make([]byte, 1+4+n)
	frame[0] = frameLZ4
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(body)))
	copy(frame[5:], compressed[:n])
	return frame, nil
}

func decodeFrame(frame []byte, v any) error {
	if len(frame) == 0 {
		return errors.New("empty record frame")
	}

	var body []byte
	switch frame[0] {
	case frameRaw:
		body = frame[1:]
	case frameLZ4:
		if len(frame) < 5 {
			return errors.New("truncated lz4 frame")
		}
		size := binary.BigEndian.Uint32(frame[1:5])
		body = make([]byte, size)
		n, err := lz4.UncompressBlock(frame[5:], body)
		if err != nil {
			return fmt.Errorf("decompress record: %w", err)
		}
		body = body[:n]
	default:
		return fmt.Errorf("unknown frame type 0x%02x", frame[0])
	}

	dec := codec.NewDecoderBytes(body, msgpackHandle)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

func lotKey(id uint64) []byte {
	return append(append([]byte{}, keyLotPrefix...), u64be(id)...)
}

func bidKey(lotID, bidID uint64) []byte {
	key := append(append([]byte{}, keyBidPrefix...), u64be(lotID)...)
	return append(key, u64be(bidID)...)
}

func rewardKey(recipient token.Address, tkn token.Token) []byte {
	key := append(append([]byte{}, keyRewardPrefix...), []byte(recipient)...)
	key = append(key, '/')
	return append(key, []byte(tkn)...)
}

func u64be(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}
